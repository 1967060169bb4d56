// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

//go:build integration

package integration

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/glowline/glowline/internal/audit"
	"github.com/glowline/glowline/pkg/errutil"
)

var _ = Describe("Login audit", func() {
	var playerID uuid.UUID

	BeforeEach(func() {
		env.truncate()
		playerID = uuid.MustParse("4566e69f-c907-48ee-8d71-d7ba5aa00d20")
	})

	login := func(at time.Time) audit.Login {
		return audit.Login{
			ID:         ulid.Make(),
			PlayerID:   playerID,
			Name:       "Alice",
			Address:    "203.0.113.7",
			Properties: 1,
			CreatedAt:  at.UTC().Truncate(time.Microsecond),
		}
	}

	It("records logins and returns them newest first", func() {
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		first := login(base)
		second := login(base.Add(time.Minute))

		Expect(env.recorder.Record(env.ctx, first)).To(Succeed())
		Expect(env.recorder.Record(env.ctx, second)).To(Succeed())

		got, err := env.recorder.Recent(env.ctx, playerID, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(2))
		Expect(got[0].ID).To(Equal(second.ID))
		Expect(got[1].ID).To(Equal(first.ID))
		Expect(got[0].CreatedAt.Equal(second.CreatedAt)).To(BeTrue())
		Expect(got[0].Address).To(Equal("203.0.113.7"))
		Expect(got[0].Properties).To(Equal(1))
	})

	It("limits the result", func() {
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		for i := range 3 {
			Expect(env.recorder.Record(env.ctx, login(base.Add(time.Duration(i)*time.Second)))).To(Succeed())
		}

		got, err := env.recorder.Recent(env.ctx, playerID, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(2))
	})

	It("rejects a duplicate id", func() {
		l := login(time.Now())
		Expect(env.recorder.Record(env.ctx, l)).To(Succeed())

		err := env.recorder.Record(env.ctx, l)
		Expect(errutil.Code(err)).To(Equal(audit.CodeDuplicate))
	})

	It("returns nothing for an unknown player", func() {
		got, err := env.recorder.Recent(env.ctx, uuid.New(), 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeEmpty())
	})

	It("reports a missing schema after rolling back", func() {
		m, err := audit.NewMigrator(env.connStr)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			Expect(m.Up()).To(Succeed())
			Expect(m.Close()).To(Succeed())
		})

		v, dirty, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeNumerically("==", 1))
		Expect(dirty).To(BeFalse())

		Expect(m.Down()).To(Succeed())

		err = env.recorder.Record(env.ctx, login(time.Now()))
		Expect(errutil.Code(err)).To(Equal(audit.CodeSchemaMissing))
	})
})
