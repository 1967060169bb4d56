// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package prelogin

import (
	"context"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync/atomic"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// Rule file defaults.
const (
	DefaultBanMessage       = "You are banned from this server!"
	DefaultWhitelistMessage = "You are not white-listed on this server!"
)

// RuleFile is the YAML document read by RuleGate.
//
//	allow_names: ["Notch", "jeb_"]
//	deny_names:
//	  - match: "*bot*"
//	    message: "Bots are not welcome"
//	deny_ids:
//	  - match: 069a79f444e94726a5befca90e38aaf5
//	deny_networks:
//	  - match: 198.51.100.0/24
type RuleFile struct {
	// AllowNames, when non-empty, is a whitelist of name patterns.
	AllowNames       []string `yaml:"allow_names"`
	WhitelistMessage string   `yaml:"whitelist_message"`
	BanMessage       string   `yaml:"ban_message"`
	DenyNames        []Rule   `yaml:"deny_names"`
	DenyIDs          []Rule   `yaml:"deny_ids"`
	DenyNetworks     []Rule   `yaml:"deny_networks"`
}

// Rule is one deny entry. Match is a glob for names, a UUID for ids
// (dashed or flat), or a CIDR or single IP for networks.
type Rule struct {
	Match   string `yaml:"match"`
	Message string `yaml:"message"`
}

type nameRule struct {
	pattern glob.Glob
	message string
}

type idRule struct {
	id      uuid.UUID
	message string
}

type netRule struct {
	network *net.IPNet
	message string
}

type ruleset struct {
	allow            []glob.Glob
	whitelistMessage string
	names            []nameRule
	ids              []idRule
	networks         []netRule
}

// ParseRules decodes and validates a YAML rule document.
func ParseRules(data []byte) (*RuleFile, error) {
	rf, _, err := decodeRules(data)
	return rf, err
}

func decodeRules(data []byte) (*RuleFile, *ruleset, error) {
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, nil, oops.Code("POLICY_INVALID").Wrapf(err, "parse rules")
	}
	rs, err := compileRules(&rf)
	if err != nil {
		return nil, nil, err
	}
	return &rf, rs, nil
}

func compileRules(rf *RuleFile) (*ruleset, error) {
	ban := rf.BanMessage
	if ban == "" {
		ban = DefaultBanMessage
	}
	rs := &ruleset{whitelistMessage: rf.WhitelistMessage}
	if rs.whitelistMessage == "" {
		rs.whitelistMessage = DefaultWhitelistMessage
	}

	for _, p := range rf.AllowNames {
		g, err := compileName(p)
		if err != nil {
			return nil, err
		}
		rs.allow = append(rs.allow, g)
	}
	for _, r := range rf.DenyNames {
		g, err := compileName(r.Match)
		if err != nil {
			return nil, err
		}
		rs.names = append(rs.names, nameRule{pattern: g, message: messageOr(r.Message, ban)})
	}
	for _, r := range rf.DenyIDs {
		id, err := uuid.Parse(r.Match)
		if err != nil {
			return nil, oops.Code("POLICY_INVALID").With("match", r.Match).Wrapf(err, "deny_ids entry")
		}
		rs.ids = append(rs.ids, idRule{id: id, message: messageOr(r.Message, ban)})
	}
	for _, r := range rf.DenyNetworks {
		n, err := parseNetwork(r.Match)
		if err != nil {
			return nil, err
		}
		rs.networks = append(rs.networks, netRule{network: n, message: messageOr(r.Message, ban)})
	}
	return rs, nil
}

func compileName(pattern string) (glob.Glob, error) {
	g, err := glob.Compile(strings.ToLower(pattern))
	if err != nil {
		return nil, oops.Code("POLICY_INVALID").With("match", pattern).Wrapf(err, "name pattern")
	}
	return g, nil
}

func parseNetwork(s string) (*net.IPNet, error) {
	if !strings.Contains(s, "/") {
		ip := net.ParseIP(s)
		if ip == nil {
			return nil, oops.Code("POLICY_INVALID").With("match", s).Errorf("not an IP or CIDR")
		}
		bits := 128
		if ip4 := ip.To4(); ip4 != nil {
			ip, bits = ip4, 32
		}
		return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
	}
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		return nil, oops.Code("POLICY_INVALID").With("match", s).Wrap(err)
	}
	return n, nil
}

func messageOr(msg, fallback string) string {
	if msg == "" {
		return fallback
	}
	return msg
}

func (rs *ruleset) check(name string, addr net.Addr, id uuid.UUID) Decision {
	lower := strings.ToLower(name)

	if len(rs.allow) > 0 {
		listed := false
		for _, g := range rs.allow {
			if g.Match(lower) {
				listed = true
				break
			}
		}
		if !listed {
			return Deny(rs.whitelistMessage)
		}
	}
	for _, r := range rs.ids {
		if r.id == id {
			return Deny(r.message)
		}
	}
	for _, r := range rs.names {
		if r.pattern.Match(lower) {
			return Deny(r.message)
		}
	}
	if ip := addrIP(addr); ip != nil {
		for _, r := range rs.networks {
			if r.network.Contains(ip) {
				return Deny(r.message)
			}
		}
	}
	return Allow()
}

// RuleGate applies a YAML rule file. Rules can be reloaded while the
// server runs; a failed reload keeps the previous rules.
type RuleGate struct {
	path   string
	rules  atomic.Pointer[ruleset]
	logger *slog.Logger
}

// NewRuleGate builds a gate from already-parsed rules, with no backing file.
func NewRuleGate(rf *RuleFile) (*RuleGate, error) {
	rs, err := compileRules(rf)
	if err != nil {
		return nil, err
	}
	g := &RuleGate{logger: slog.New(slog.DiscardHandler)}
	g.rules.Store(rs)
	return g, nil
}

// LoadRuleGate reads the rule file at path.
func LoadRuleGate(path string, logger *slog.Logger) (*RuleGate, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	g := &RuleGate{path: path, logger: logger}
	if err := g.Reload(); err != nil {
		return nil, err
	}
	return g, nil
}

// Reload re-reads the rule file.
func (g *RuleGate) Reload() error {
	if g.path == "" {
		return oops.Code("POLICY_INVALID").Errorf("rule gate has no backing file")
	}
	data, err := os.ReadFile(g.path)
	if err != nil {
		return oops.Code("POLICY_LOAD_FAILED").With("path", g.path).Wrap(err)
	}
	_, rs, err := decodeRules(data)
	if err != nil {
		return oops.With("path", g.path).Wrap(err)
	}
	g.rules.Store(rs)
	g.logger.Info("pre-login rules loaded",
		"event", "policy_rules_loaded",
		"path", g.path,
		"deny_names", len(rs.names),
		"deny_ids", len(rs.ids),
		"deny_networks", len(rs.networks),
		"allow_names", len(rs.allow),
	)
	return nil
}

// Check implements Gate.
func (g *RuleGate) Check(_ context.Context, name string, addr net.Addr, id uuid.UUID) Decision {
	return g.rules.Load().check(name, addr, id)
}
