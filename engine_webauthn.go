package checkmate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/Mr-ivo/CheckMate-backend/internal/stores"
)

// Ceremony state is keyed by user and purpose, so re-beginning a ceremony
// overwrites the stale challenge and a registration reference can never
// finish an authentication.
const (
	challengeKindRegistration   = "reg"
	challengeKindAuthentication = "auth"
)

// webAuthnUser adapts an identity and its stored credentials to the
// go-webauthn user contract.
type webAuthnUser struct {
	identity    IdentityRecord
	credentials []WebAuthnCredentialRecord
}

func (u *webAuthnUser) WebAuthnID() []byte {
	return []byte(u.identity.UserID)
}

func (u *webAuthnUser) WebAuthnName() string {
	return u.identity.Email
}

func (u *webAuthnUser) WebAuthnDisplayName() string {
	return u.identity.Email
}

// WebAuthnIcon satisfies the deprecated icon accessor still required by
// the webauthn.User interface in go-webauthn v0.10.x.
func (u *webAuthnUser) WebAuthnIcon() string {
	return ""
}

func (u *webAuthnUser) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, 0, len(u.credentials))
	for _, record := range u.credentials {
		transports := make([]protocol.AuthenticatorTransport, 0, len(record.Transports))
		for _, t := range record.Transports {
			transports = append(transports, protocol.AuthenticatorTransport(t))
		}
		creds = append(creds, webauthn.Credential{
			ID:        record.CredentialID,
			PublicKey: record.PublicKey,
			Transport: transports,
			Authenticator: webauthn.Authenticator{
				SignCount: record.SignCount,
			},
		})
	}
	return creds
}

func (u *webAuthnUser) exclusions() []protocol.CredentialDescriptor {
	descriptors := make([]protocol.CredentialDescriptor, 0, len(u.credentials))
	for _, record := range u.credentials {
		descriptors = append(descriptors, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: record.CredentialID,
		})
	}
	return descriptors
}

func (e *Engine) webAuthnUserByID(ctx context.Context, userID string) (*webAuthnUser, error) {
	identity, err := e.identity.GetIdentityByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	credentials, err := e.identity.ListWebAuthnCredentials(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return &webAuthnUser{identity: identity, credentials: credentials}, nil
}

// BeginWebAuthnRegistration starts a credential registration ceremony for a
// logged-in user and returns the creation options for the client. Existing
// credentials are excluded so an authenticator cannot register twice.
func (e *Engine) BeginWebAuthnRegistration(ctx context.Context, userID string) (*protocol.CredentialCreation, error) {
	if e == nil || e.webAuthn == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.webAuthnUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	options, sessionData, err := e.webAuthn.BeginRegistration(user,
		webauthn.WithExclusions(user.exclusions()),
	)
	if err != nil {
		return nil, err
	}

	if err := e.putChallenge(ctx, challengeKindRegistration, userID, sessionData); err != nil {
		return nil, err
	}
	return options, nil
}

// FinishWebAuthnRegistration verifies the authenticator's attestation
// response and stores the new credential under the given label. The response
// is the serialized client payload; parsing is transport independent.
func (e *Engine) FinishWebAuthnRegistration(ctx context.Context, userID, label string, response []byte) (*WebAuthnCredentialRecord, error) {
	if e == nil || e.webAuthn == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.webAuthnUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	sessionData, err := e.consumeChallenge(ctx, challengeKindRegistration, userID)
	if err != nil {
		return nil, err
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(response))
	if err != nil {
		return nil, ErrChallengeExpired
	}

	credential, err := e.webAuthn.CreateCredential(user, *sessionData, parsed)
	if err != nil {
		e.emitAudit(ctx, auditEventWebAuthnFailure, false, userID, user.identity.Email, "", ErrChallengeExpired, nil)
		return nil, ErrChallengeExpired
	}

	transports := make([]string, 0, len(credential.Transport))
	for _, t := range credential.Transport {
		transports = append(transports, string(t))
	}

	record := WebAuthnCredentialRecord{
		UserID:       userID,
		CredentialID: credential.ID,
		PublicKey:    credential.PublicKey,
		SignCount:    credential.Authenticator.SignCount,
		// Authenticators that do not implement a signature counter report 0
		// at registration. They stay exempt from the strictly-increasing
		// rule until the first nonzero counter is observed.
		CounterExempt: credential.Authenticator.SignCount == 0,
		Transports:    transports,
		Label:         label,
		CreatedAt:     time.Now(),
	}

	if err := e.identity.CreateWebAuthnCredential(ctx, record); err != nil {
		return nil, storeErr(err)
	}

	e.metricInc(MetricWebAuthnRegistered)
	e.emitAudit(ctx, auditEventWebAuthnRegistered, true, userID, user.identity.Email, "", nil, func() map[string]string {
		return map[string]string{"label": label}
	})
	return &record, nil
}

// BeginWebAuthnAuthentication starts an assertion ceremony for an email.
// Unknown emails and accounts without registered credentials fail with the
// identical error so account existence is not revealed.
func (e *Engine) BeginWebAuthnAuthentication(ctx context.Context, email string) (*protocol.CredentialAssertion, error) {
	if e == nil || e.webAuthn == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.lookupWebAuthnUser(ctx, email)
	if err != nil {
		return nil, err
	}

	options, sessionData, err := e.webAuthn.BeginLogin(user)
	if err != nil {
		return nil, ErrCredentialNotFound
	}

	if err := e.putChallenge(ctx, challengeKindAuthentication, user.identity.UserID, sessionData); err != nil {
		return nil, err
	}
	return options, nil
}

// FinishWebAuthnAuthentication verifies an assertion response and, on
// success, issues tokens and opens a session exactly as a password login
// would. Assertions whose signature counter has not advanced past the
// stored value are rejected as replays unless the credential is
// counter-exempt.
func (e *Engine) FinishWebAuthnAuthentication(ctx context.Context, email string, response []byte) (*LoginResult, error) {
	if e == nil || e.webAuthn == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.lookupWebAuthnUser(ctx, email)
	if err != nil {
		return nil, err
	}
	identity := user.identity

	sessionData, err := e.consumeChallenge(ctx, challengeKindAuthentication, identity.UserID)
	if err != nil {
		return nil, err
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(response))
	if err != nil {
		return nil, ErrChallengeExpired
	}

	credential, err := e.webAuthn.ValidateLogin(user, *sessionData, parsed)
	if err != nil {
		e.metricInc(MetricWebAuthnFailure)
		e.emitAudit(ctx, auditEventWebAuthnFailure, false, identity.UserID, email, "", ErrChallengeExpired, nil)
		return nil, ErrChallengeExpired
	}

	stored, err := e.identity.GetWebAuthnCredential(ctx, credential.ID)
	if err != nil {
		return nil, ErrCredentialNotFound
	}

	newCount := credential.Authenticator.SignCount
	counterExempt, err := applySignCountPolicy(stored, newCount)
	if err != nil {
		e.metricInc(MetricReplayDetected)
		e.emitAudit(ctx, auditEventReplayDetected, false, identity.UserID, email, "", err, func() map[string]string {
			return map[string]string{"label": stored.Label}
		})
		return nil, err
	}

	if err := e.identity.UpdateWebAuthnUsage(ctx, credential.ID, newCount, counterExempt, time.Now()); err != nil {
		return nil, storeErr(err)
	}

	return e.finishLogin(ctx, identity, auditEventWebAuthnSuccess, MetricWebAuthnSuccess)
}

// ListWebAuthnCredentials returns the user's registered credentials with
// labels and usage statistics.
func (e *Engine) ListWebAuthnCredentials(ctx context.Context, userID string) ([]WebAuthnCredentialRecord, error) {
	if e == nil || e.identity == nil {
		return nil, ErrEngineNotReady
	}
	records, err := e.identity.ListWebAuthnCredentials(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return records, nil
}

// DeleteWebAuthnCredential removes one registered credential. Sessions
// opened through it stay valid; only future ceremonies are affected.
func (e *Engine) DeleteWebAuthnCredential(ctx context.Context, userID string, credentialID []byte) error {
	if e == nil || e.identity == nil {
		return ErrEngineNotReady
	}
	if err := e.identity.DeleteWebAuthnCredential(ctx, userID, credentialID); err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return ErrCredentialNotFound
		}
		return storeErr(err)
	}
	e.emitAudit(ctx, auditEventWebAuthnRemoved, true, userID, "", "", nil, nil)
	return nil
}

// applySignCountPolicy enforces the replay rule: the asserted counter must
// be strictly greater than the stored one. Credentials whose authenticator
// never implemented a counter report 0 forever and stay exempt; the first
// nonzero counter ends the exemption permanently. Returns the credential's
// new exemption state.
func applySignCountPolicy(stored WebAuthnCredentialRecord, newCount uint32) (bool, error) {
	if stored.CounterExempt {
		return newCount == 0, nil
	}
	if newCount <= stored.SignCount {
		return false, ErrReplayDetected
	}
	return false, nil
}

// lookupWebAuthnUser resolves an email to a user with at least one
// registered credential, collapsing all failure modes to CredentialNotFound.
func (e *Engine) lookupWebAuthnUser(ctx context.Context, email string) (*webAuthnUser, error) {
	identity, err := e.identity.GetIdentityByEmail(ctx, email)
	if err != nil {
		return nil, ErrCredentialNotFound
	}
	if !identity.Active {
		return nil, ErrCredentialNotFound
	}
	credentials, err := e.identity.ListWebAuthnCredentials(ctx, identity.UserID)
	if err != nil {
		return nil, storeErr(err)
	}
	if len(credentials) == 0 {
		return nil, ErrCredentialNotFound
	}
	return &webAuthnUser{identity: identity, credentials: credentials}, nil
}

func (e *Engine) putChallenge(ctx context.Context, kind, userID string, sessionData *webauthn.SessionData) error {
	data, err := json.Marshal(sessionData)
	if err != nil {
		return err
	}
	if err := e.challenges.Put(ctx, kind, userID, data, e.config.WebAuthn.ChallengeTTL); err != nil {
		return storeErr(err)
	}
	return nil
}

func (e *Engine) consumeChallenge(ctx context.Context, kind, userID string) (*webauthn.SessionData, error) {
	data, err := e.challenges.Consume(ctx, kind, userID)
	if err != nil {
		if errors.Is(err, stores.ErrNoPending) {
			return nil, ErrChallengeExpired
		}
		return nil, storeErr(err)
	}

	sessionData := &webauthn.SessionData{}
	if err := json.Unmarshal(data, sessionData); err != nil {
		return nil, ErrChallengeExpired
	}
	return sessionData, nil
}
