// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/recovery/internal/store"
)

var _ = Describe("Migrator", func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("recovery_test"),
			postgres.WithUsername("recovery"),
			postgres.WithPassword("recovery"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = container.Terminate(ctx)
	})

	It("applies and rolls back every migration", func() {
		m, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = m.Close() }()

		pending, err := m.PendingMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(Equal([]uint{1, 2}))

		Expect(m.Up()).To(Succeed())
		version, dirty, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))
		Expect(dirty).To(BeFalse())

		pool, err := store.Connect(ctx, connStr, store.ConnectOptions{})
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()
		Expect(tableExists(ctx, pool, "password_reset_tokens")).To(BeTrue())

		Expect(m.Down()).To(Succeed())
		Expect(tableExists(ctx, pool, "password_reset_tokens")).To(BeFalse())
		Expect(tableExists(ctx, pool, "users")).To(BeFalse())
	})

	It("is idempotent", func() {
		m, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = m.Close() }()

		Expect(m.Up()).To(Succeed())
		Expect(m.Up()).To(Succeed())
	})
})

func tableExists(ctx context.Context, pool *pgxpool.Pool, name string) bool {
	var exists bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, name).
		Scan(&exists)
	Expect(err).NotTo(HaveOccurred())
	return exists
}
