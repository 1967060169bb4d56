// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package prelogin

import (
	"context"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/glowline/glowline/pkg/errutil"
)

// ScriptErrorMessage is shown when the pre-login script fails.
const ScriptErrorMessage = "Login rejected by server policy"

// DefaultScriptTimeout bounds one prelogin call.
const DefaultScriptTimeout = 250 * time.Millisecond

const scriptEntry = "prelogin"

// safeLibraries are opened in every script state. os, io, debug and
// package stay closed.
var safeLibraries = []struct {
	name string
	fn   lua.LGFunction
}{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
}

// unsafeBaseFunctions reach the filesystem or compile arbitrary code.
var unsafeBaseFunctions = []string{"dofile", "loadfile", "loadstring", "load", "require"}

func newSandbox() (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range safeLibraries {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, oops.Code("POLICY_SCRIPT_INVALID").With("library", lib.name).Wrap(err)
		}
	}
	for _, fn := range unsafeBaseFunctions {
		L.SetGlobal(fn, lua.LNil)
	}
	return L, nil
}

// LuaGate delegates the decision to a Lua function:
//
//	function prelogin(name, address, uuid)
//	  if name == "Herobrine" then
//	    return false, "Nice try"
//	  end
//	  return true
//	end
//
// address is the peer IP (empty when unknown) and uuid is in dashed form.
// Every call runs in a fresh sandboxed state. Errors, timeouts and
// non-boolean results deny with ScriptErrorMessage.
type LuaGate struct {
	name    string
	proto   *lua.FunctionProto
	timeout time.Duration
	logger  *slog.Logger
}

// LuaOption configures a LuaGate.
type LuaOption func(*LuaGate)

// WithScriptTimeout sets the per-call timeout.
func WithScriptTimeout(d time.Duration) LuaOption {
	return func(g *LuaGate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithScriptLogger sets the logger for script failures.
func WithScriptLogger(logger *slog.Logger) LuaOption {
	return func(g *LuaGate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// LoadLuaGate compiles the script at path.
func LoadLuaGate(path string, opts ...LuaOption) (*LuaGate, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Code("POLICY_LOAD_FAILED").With("path", path).Wrap(err)
	}
	return NewLuaGate(path, string(src), opts...)
}

// NewLuaGate compiles src. name identifies the chunk in error messages.
// The script must define a global prelogin function.
func NewLuaGate(name, src string, opts ...LuaOption) (*LuaGate, error) {
	chunk, err := parse.Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, oops.Code("POLICY_SCRIPT_INVALID").With("script", name).Wrap(err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, oops.Code("POLICY_SCRIPT_INVALID").With("script", name).Wrap(err)
	}

	g := &LuaGate{
		name:    name,
		proto:   proto,
		timeout: DefaultScriptTimeout,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	L, fn, err := g.load(ctx)
	if err != nil {
		return nil, err
	}
	defer L.Close()
	if fn.Type() != lua.LTFunction {
		return nil, oops.Code("POLICY_SCRIPT_INVALID").
			With("script", name).
			Errorf("script does not define function %s", scriptEntry)
	}
	return g, nil
}

func (g *LuaGate) load(ctx context.Context) (*lua.LState, lua.LValue, error) {
	L, err := newSandbox()
	if err != nil {
		return nil, nil, err
	}
	L.SetContext(ctx)
	L.Push(L.NewFunctionFromProto(g.proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.Close()
		return nil, nil, oops.Code("POLICY_SCRIPT_INVALID").With("script", g.name).Wrap(err)
	}
	return L, L.GetGlobal(scriptEntry), nil
}

// Check implements Gate.
func (g *LuaGate) Check(ctx context.Context, name string, addr net.Addr, id uuid.UUID) Decision {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	d, err := g.call(ctx, name, addr, id)
	if err != nil {
		errutil.Log(ctx, g.logger, slog.LevelError, "pre-login script failed", err,
			"event", "policy_script_failed",
			"username", name,
		)
		return Deny(ScriptErrorMessage)
	}
	return d
}

func (g *LuaGate) call(ctx context.Context, name string, addr net.Addr, id uuid.UUID) (Decision, error) {
	L, fn, err := g.load(ctx)
	if err != nil {
		return Decision{}, err
	}
	defer L.Close()

	address := ""
	if ip := addrIP(addr); ip != nil {
		address = ip.String()
	}
	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    2,
		Protect: true,
	}, lua.LString(name), lua.LString(address), lua.LString(id.String())); err != nil {
		return Decision{}, oops.Code("POLICY_SCRIPT_FAILED").With("script", g.name).Wrap(err)
	}

	allowed, msg := L.Get(-2), L.Get(-1)
	L.Pop(2)

	ok, isBool := allowed.(lua.LBool)
	if !isBool {
		return Decision{}, oops.Code("POLICY_SCRIPT_FAILED").
			With("script", g.name).
			With("result_type", allowed.Type().String()).
			Errorf("%s must return a boolean", scriptEntry)
	}
	if bool(ok) {
		return Allow(), nil
	}
	if s, isStr := msg.(lua.LString); isStr {
		return Deny(string(s)), nil
	}
	return Deny(""), nil
}
