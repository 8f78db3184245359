// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/recovery/internal/email"
	"github.com/holomush/recovery/pkg/errutil"
)

// ResetPath is appended to the frontend base URL to form reset links.
const ResetPath = "/reset-password"

// RateLimiter bounds reset requests per identifier.
type RateLimiter interface {
	// Allow records an attempt for key and reports whether it is within the limit.
	Allow(ctx context.Context, key string) (bool, error)
}

// ResetMailer delivers reset links.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, msg email.ResetMessage) error
}

// Default issuance queue settings.
const (
	DefaultIssueQueueSize = 256
	DefaultIssueWorkers   = 4
	DefaultIssueTimeout   = 30 * time.Second
)

// ErrIssueQueueFull is logged when a reset for a known account is dropped
// because the issuance queue is at capacity.
var ErrIssueQueueFull = oops.Code("RESET_ISSUE_QUEUE_FULL").Errorf("reset issuance queue is full")

// ErrServiceClosed is logged when a reset arrives after Close.
var ErrServiceClosed = oops.Code("RESET_SERVICE_CLOSED").Errorf("password reset service is closed")

type issueJob struct {
	ctx  context.Context
	user *User
}

// PasswordResetService runs the request and confirm halves of the password
// reset protocol.
//
// Token issuance and mail dispatch for known accounts run on background
// workers, so RequestReset does the same work whether or not the account
// exists. Call Close to drain pending issuance.
type PasswordResetService struct {
	users   UserDirectory
	tokens  ResetTokenStore
	limiter RateLimiter
	mailer  ResetMailer
	policy  PasswordPolicy
	baseURL string
	logger  *slog.Logger
	now     func() time.Time

	queueSize    int
	workers      int
	issueTimeout time.Duration
	queue        chan issueJob

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// ResetServiceOption configures a PasswordResetService.
type ResetServiceOption func(*PasswordResetService)

// WithLogger sets the logger used for swallowed failures.
func WithLogger(logger *slog.Logger) ResetServiceOption {
	return func(s *PasswordResetService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) ResetServiceOption {
	return func(s *PasswordResetService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIssueQueue sets the issuance queue capacity and worker count.
// Non-positive values keep the defaults.
func WithIssueQueue(size, workers int) ResetServiceOption {
	return func(s *PasswordResetService) {
		if size > 0 {
			s.queueSize = size
		}
		if workers > 0 {
			s.workers = workers
		}
	}
}

// WithIssueTimeout bounds how long one issuance (store write plus mail
// hand-off) may take.
func WithIssueTimeout(d time.Duration) ResetServiceOption {
	return func(s *PasswordResetService) {
		if d > 0 {
			s.issueTimeout = d
		}
	}
}

// NewPasswordResetService creates a new PasswordResetService.
// frontendBaseURL is the absolute URL reset links point at.
func NewPasswordResetService(
	users UserDirectory,
	tokens ResetTokenStore,
	limiter RateLimiter,
	mailer ResetMailer,
	frontendBaseURL string,
	opts ...ResetServiceOption,
) (*PasswordResetService, error) {
	if users == nil {
		return nil, oops.Errorf("user directory is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("reset token store is required")
	}
	if limiter == nil {
		return nil, oops.Errorf("rate limiter is required")
	}
	if mailer == nil {
		return nil, oops.Errorf("mailer is required")
	}
	u, err := url.Parse(frontendBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, oops.With("frontend_base_url", frontendBaseURL).Errorf("frontend base URL must be absolute")
	}

	s := &PasswordResetService{
		users:   users,
		tokens:  tokens,
		limiter: limiter,
		mailer:  mailer,
		policy:  NewPasswordPolicy(),
		baseURL: strings.TrimRight(frontendBaseURL, "/"),
		logger:  slog.Default(),
		now:     time.Now,

		queueSize:    DefaultIssueQueueSize,
		workers:      DefaultIssueWorkers,
		issueTimeout: DefaultIssueTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.queue = make(chan issueJob, s.queueSize)
	s.wg.Add(s.workers)
	for range s.workers {
		go s.runIssuer()
	}
	return s, nil
}

// Close stops accepting resets, finishes queued issuance, and waits for
// the workers to exit. Safe to call more than once.
func (s *PasswordResetService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}

// Policy returns the password policy applied by ConfirmReset.
func (s *PasswordResetService) Policy() PasswordPolicy {
	return s.policy
}

// RequestReset starts a reset for the account registered under email.
//
// The result is the same whether or not the account exists: nil on
// acceptance, RATE_LIMITED when the identifier has used its attempts, and
// INVALID_EMAIL_FORMAT for malformed input. For a known account the token
// is issued and mailed in the background; those failures are logged and
// never returned. Any other error is an infrastructure failure.
func (s *PasswordResetService) RequestReset(ctx context.Context, rawEmail string) error {
	started := time.Now()
	addr := NormalizeEmail(rawEmail)

	allowed, err := s.limiter.Allow(ctx, addr)
	if err != nil {
		recordRequest(OutcomeError, started)
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "rate_limit").Wrap(err)
	}
	if !allowed {
		recordRequest(OutcomeRateLimited, started)
		return oops.Code(CodeRateLimited).Errorf("too many password reset requests, try again later")
	}

	if err := ValidateEmail(addr); err != nil {
		recordRequest(OutcomeInvalidEmail, started)
		return err
	}

	user, err := s.users.GetByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.DebugContext(ctx, "password reset requested for unknown email",
				"email_fingerprint", EmailFingerprint(addr))
			recordRequest(OutcomeAccepted, started)
			return nil
		}
		recordRequest(OutcomeError, started)
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "get_user").Wrap(err)
	}

	if err := s.enqueue(ctx, user); err != nil {
		recordIssue(OutcomeDropped)
		errutil.LogErrorContext(ctx, s.logger, "password reset issuance dropped",
			oops.With("user_id", user.ID.String()).Wrap(err))
	}
	recordRequest(OutcomeAccepted, started)
	return nil
}

func (s *PasswordResetService) enqueue(ctx context.Context, user *User) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrServiceClosed
	}

	// Keep request-scoped values (request and trace IDs) but not the
	// request's cancellation; the response is written before issuance.
	select {
	case s.queue <- issueJob{ctx: context.WithoutCancel(ctx), user: user}:
		return nil
	default:
		return ErrIssueQueueFull
	}
}

func (s *PasswordResetService) runIssuer() {
	defer s.wg.Done()
	for j := range s.queue {
		s.issue(j)
	}
}

// issue creates the user's single active token and hands the link to the
// mailer. A token that cannot be stored is never mailed.
func (s *PasswordResetService) issue(j issueJob) {
	ctx, cancel := context.WithTimeout(j.ctx, s.issueTimeout)
	defer cancel()
	user := j.user

	token, hash, err := GenerateResetToken()
	if err != nil {
		recordIssue(OutcomeError)
		errutil.LogErrorContext(ctx, s.logger, "password reset issuance failed",
			oops.Code("RESET_ISSUE_FAILED").
				With("operation", "generate_token").
				With("user_id", user.ID.String()).
				Wrap(err))
		return
	}

	expiresAt := s.now().Add(ResetTokenExpiry)
	if err := s.tokens.CreateActive(ctx, user.ID, hash, expiresAt); err != nil {
		recordIssue(OutcomeError)
		errutil.LogErrorContext(ctx, s.logger, "password reset issuance failed",
			oops.Code("RESET_ISSUE_FAILED").
				With("operation", "create_token").
				With("user_id", user.ID.String()).
				Wrap(err))
		return
	}

	msg := email.ResetMessage{
		To:        user.Email,
		ResetLink: s.resetLink(token),
		ExpiresIn: ResetTokenExpiry,
	}
	if err := s.mailer.SendPasswordReset(ctx, msg); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "password reset email dispatch failed",
			oops.Code(CodeEmailDispatchFailed).With("user_id", user.ID.String()).Wrap(err))
	}

	s.logger.InfoContext(ctx, "password reset token issued",
		"user_id", user.ID.String(),
		"expires_at", expiresAt)
	recordIssue(OutcomeIssued)
}

// ConfirmReset sets a new password using a raw reset token.
//
// Password rules are checked first (WEAK_PASSWORD). Unknown, expired and
// already used tokens all fail with INVALID_OR_EXPIRED_TOKEN. Once the
// token is consumed it stays consumed, even if the password update fails.
func (s *PasswordResetService) ConfirmReset(ctx context.Context, rawToken, newPassword string) error {
	if violations := s.policy.Validate(newPassword); len(violations) > 0 {
		recordConfirm(OutcomeWeakPassword)
		return errWeakPassword(violations)
	}

	if rawToken == "" {
		recordConfirm(OutcomeInvalidToken)
		return errInvalidOrExpiredToken()
	}

	token, err := s.tokens.FindActiveByHash(ctx, HashResetToken(rawToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			recordConfirm(OutcomeInvalidToken)
			return errInvalidOrExpiredToken()
		}
		recordConfirm(OutcomeError)
		return oops.Code("RESET_CONFIRM_FAILED").With("operation", "find_token").Wrap(err)
	}

	if err := s.tokens.Consume(ctx, token.ID); err != nil {
		if errors.Is(err, ErrAlreadyConsumed) {
			recordConfirm(OutcomeInvalidToken)
			return errInvalidOrExpiredToken()
		}
		recordConfirm(OutcomeError)
		return oops.Code("RESET_CONFIRM_FAILED").
			With("operation", "consume_token").
			With("token_id", token.ID).
			Wrap(err)
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			recordConfirm(OutcomeUnknownUser)
			return oops.Code(CodeUserResolutionFailed).
				With("user_id", token.UserID.String()).
				Errorf("account for reset token no longer exists")
		}
		recordConfirm(OutcomeError)
		return oops.Code("RESET_CONFIRM_FAILED").With("operation", "get_user").Wrap(err)
	}

	if err := s.users.UpdatePassword(ctx, user.ID, newPassword); err != nil {
		recordConfirm(OutcomeError)
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "update_password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password reset completed", "user_id", user.ID.String())
	recordConfirm(OutcomeSuccess)
	return nil
}

func (s *PasswordResetService) resetLink(token string) string {
	return s.baseURL + ResetPath + "?token=" + url.QueryEscape(token)
}
