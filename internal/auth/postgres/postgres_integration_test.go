// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/recovery/internal/auth"
	"github.com/holomush/recovery/internal/auth/postgres"
)

var cheapHasher = auth.NewArgon2idHasherWithParams(auth.Argon2Params{
	Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32,
})

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func createUser(dir *postgres.UserDirectory, email string) *auth.User {
	hash, err := cheapHasher.Hash("Initial1Pass!")
	Expect(err).NotTo(HaveOccurred())
	user, err := auth.NewUser(email, hash)
	Expect(err).NotTo(HaveOccurred())
	Expect(dir.Create(suiteCtx, user)).To(Succeed())
	return user
}

var _ = Describe("UserDirectory", func() {
	var dir *postgres.UserDirectory

	BeforeEach(func() {
		dir = postgres.NewUserDirectory(pool, cheapHasher)
	})

	It("looks users up by email case-insensitively", func() {
		user := createUser(dir, "alice@example.com")

		found, err := dir.GetByEmail(suiteCtx, "ALICE@Example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(found.ID).To(Equal(user.ID))
	})

	It("rejects duplicate emails", func() {
		createUser(dir, "alice@example.com")

		hash, err := cheapHasher.Hash("Other1Pass!")
		Expect(err).NotTo(HaveOccurred())
		dup, err := auth.NewUser("Alice@example.com", hash)
		Expect(err).NotTo(HaveOccurred())

		Expect(dir.Create(suiteCtx, dup)).To(MatchError(postgres.ErrEmailTaken))
	})

	It("stores a verifiable hash on password update", func() {
		user := createUser(dir, "alice@example.com")

		Expect(dir.UpdatePassword(suiteCtx, user.ID, "Changed1Pass!")).To(Succeed())

		found, err := dir.GetByID(suiteCtx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(found.PasswordHash).NotTo(ContainSubstring("Changed1Pass!"))
		ok, err := cheapHasher.Verify("Changed1Pass!", found.PasswordHash)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("reports missing users", func() {
		user, err := auth.NewUser("ghost@example.com", "x")
		Expect(err).NotTo(HaveOccurred())

		_, err = dir.GetByID(suiteCtx, user.ID)
		Expect(err).To(MatchError(auth.ErrNotFound))
		Expect(dir.UpdatePassword(suiteCtx, user.ID, "Changed1Pass!")).To(MatchError(auth.ErrNotFound))
	})
})

var _ = Describe("ResetTokenStore", func() {
	var (
		clock  *testClock
		tokens *postgres.ResetTokenStore
		user   *auth.User
	)

	BeforeEach(func() {
		clock = &testClock{now: time.Now().UTC().Truncate(time.Microsecond)}
		tokens = postgres.NewResetTokenStoreWithClock(pool, clock.Now)
		user = createUser(postgres.NewUserDirectory(pool, cheapHasher), "alice@example.com")
	})

	issue := func() string {
		_, hash, err := auth.GenerateResetToken()
		Expect(err).NotTo(HaveOccurred())
		Expect(tokens.CreateActive(suiteCtx, user.ID, hash, clock.Now().Add(auth.ResetTokenExpiry))).To(Succeed())
		return hash
	}

	countUnused := func() int {
		var n int
		err := pool.QueryRow(suiteCtx,
			`SELECT COUNT(*) FROM password_reset_tokens WHERE user_id = $1 AND used_at IS NULL`,
			user.ID.String()).Scan(&n)
		Expect(err).NotTo(HaveOccurred())
		return n
	}

	It("keeps a single active token per user", func() {
		first := issue()
		second := issue()

		Expect(countUnused()).To(Equal(1))
		_, err := tokens.FindActiveByHash(suiteCtx, first)
		Expect(err).To(MatchError(auth.ErrNotFound))
		found, err := tokens.FindActiveByHash(suiteCtx, second)
		Expect(err).NotTo(HaveOccurred())
		Expect(found.UserID).To(Equal(user.ID))
	})

	It("keeps a single active token under concurrent requests", func() {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				issue()
			}()
		}
		wg.Wait()

		Expect(countUnused()).To(Equal(1))
	})

	It("lets exactly one concurrent consumer win", func() {
		hash := issue()
		token, err := tokens.FindActiveByHash(suiteCtx, hash)
		Expect(err).NotTo(HaveOccurred())

		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			wins   int
			losses int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				err := tokens.Consume(suiteCtx, token.ID)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					wins++
					return
				}
				Expect(err).To(MatchError(auth.ErrAlreadyConsumed))
				losses++
			}()
		}
		wg.Wait()

		Expect(wins).To(Equal(1))
		Expect(losses).To(Equal(9))
		_, err = tokens.FindActiveByHash(suiteCtx, hash)
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("treats expired tokens as inactive", func() {
		hash := issue()
		token, err := tokens.FindActiveByHash(suiteCtx, hash)
		Expect(err).NotTo(HaveOccurred())

		clock.Advance(auth.ResetTokenExpiry)

		_, err = tokens.FindActiveByHash(suiteCtx, hash)
		Expect(err).To(MatchError(auth.ErrNotFound))
		Expect(tokens.Consume(suiteCtx, token.ID)).To(MatchError(auth.ErrAlreadyConsumed))
	})

	It("keeps used tokens as history when a new one is issued", func() {
		hash := issue()
		token, err := tokens.FindActiveByHash(suiteCtx, hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(tokens.Consume(suiteCtx, token.ID)).To(Succeed())

		issue()

		var total int
		Expect(pool.QueryRow(suiteCtx, `SELECT COUNT(*) FROM password_reset_tokens`).Scan(&total)).To(Succeed())
		Expect(total).To(Equal(2))
	})

	It("purges tokens by age in any state", func() {
		issue()
		clock.Advance(48 * time.Hour)
		issue()

		n, err := tokens.PurgeOlderThan(suiteCtx, 24*time.Hour)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(0)), "superseded tokens are already deleted")

		clock.Advance(48 * time.Hour)
		n, err = tokens.PurgeOlderThan(suiteCtx, 24*time.Hour)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))
	})

	It("cascades token deletion with the user", func() {
		issue()
		_, err := pool.Exec(suiteCtx, `DELETE FROM users WHERE id = $1`, user.ID.String())
		Expect(err).NotTo(HaveOccurred())
		Expect(countUnused()).To(Equal(0))
	})
})
