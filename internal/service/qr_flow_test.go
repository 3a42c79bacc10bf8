package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/domain"
)

func initAndParse(t *testing.T, env *testEnv, initiator *Caller, role string, autoBind bool, approver Caller) (*QRInitResult, *ParseResult) {
	t.Helper()
	ctx := context.Background()
	init, err := env.broker.Init(ctx, initiator, QRInitInput{RequiredRole: role, AutoBind: autoBind})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	parsed, err := env.handshake.Parse(ctx, approver, init.EncodedPayload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return init, parsed
}

func TestQRLoginScenarioWithAutoBind(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	approver := Caller{PrincipalID: "companion-1"}
	console := Caller{PrincipalID: "social-worker"}
	env.grant(t, console.PrincipalID, domain.RoleSocialWorker)

	init, parsed := initAndParse(t, env, &console, domain.RoleSocialWorker, true, approver)
	if parsed.SessionID != init.SessionID || parsed.ApproveNonce == "" {
		t.Fatalf("unexpected parse result: %+v", parsed)
	}
	if !init.ExpiresAt.Equal(env.clock.Now().Add(90 * time.Second)) {
		t.Fatalf("unexpected expiry: %s", init.ExpiresAt)
	}

	approved, err := env.handshake.Approve(ctx, approver, ApproveInput{
		SessionID:    init.SessionID,
		ApproveNonce: parsed.ApproveNonce,
		SelectedRole: domain.RoleSocialWorker,
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Ticket == "" || approved.SessionInfo.RefreshToken == "" {
		t.Fatalf("expected ticket and refresh token, got %+v", approved)
	}
	if approved.UserInfo.SelectedRole != domain.RoleSocialWorker {
		t.Fatalf("unexpected user info: %+v", approved.UserInfo)
	}

	status, err := env.broker.Status(ctx, init.SessionID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != domain.QRSessionApproved {
		t.Fatalf("expected approved, got %s", status.Status)
	}
	if status.Ticket != approved.Ticket {
		t.Fatal("status must return the ticket minted on approve")
	}
	if status.UserInfo == nil || status.UserInfo.PrincipalID != approver.PrincipalID {
		t.Fatalf("unexpected status user info: %+v", status.UserInfo)
	}

	roles, err := env.rbac.ResolveRoles(ctx, approver.PrincipalID)
	if err != nil {
		t.Fatalf("resolve roles: %v", err)
	}
	if len(roles) != 1 || roles[0] != domain.RoleSocialWorker {
		t.Fatalf("expected auto-bound social_worker role, got %v", roles)
	}
	if env.sink.count("qr.session.approved") != 1 {
		t.Fatal("expected one approval audit event")
	}
}

func TestQRApproveSecondAttemptRejectsNonce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	approver := Caller{PrincipalID: "companion-1"}
	env.grant(t, approver.PrincipalID, domain.RoleVolunteer)

	init, parsed := initAndParse(t, env, nil, domain.RoleVolunteer, false, approver)
	in := ApproveInput{SessionID: init.SessionID, ApproveNonce: parsed.ApproveNonce}
	if _, err := env.handshake.Approve(ctx, approver, in); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	_, err := env.handshake.Approve(ctx, approver, in)
	wantCode(t, err, CodeInvalidApproveNonce)
}

func TestQRApproveAfterExpiryFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	approver := Caller{PrincipalID: "companion-1"}
	env.grant(t, approver.PrincipalID, domain.RoleVolunteer)

	init, parsed := initAndParse(t, env, nil, domain.RoleVolunteer, false, approver)
	env.clock.Advance(91 * time.Second)

	_, err := env.handshake.Approve(ctx, approver, ApproveInput{SessionID: init.SessionID, ApproveNonce: parsed.ApproveNonce})
	wantCode(t, err, CodeSessionExpired)

	status, err := env.broker.Status(ctx, init.SessionID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != domain.QRSessionExpired {
		t.Fatalf("expected expired after lazy flip, got %s", status.Status)
	}
}

func TestQRApproveChecksInOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	approver := Caller{PrincipalID: "companion-1"}
	env.grant(t, approver.PrincipalID, domain.RoleVolunteer)

	_, err := env.handshake.Approve(ctx, approver, ApproveInput{SessionID: "00000000-0000-0000-0000-000000000000", ApproveNonce: "x"})
	wantCode(t, err, CodeSessionNotFound)

	init, _ := initAndParse(t, env, nil, domain.RoleVolunteer, false, approver)
	_, err = env.handshake.Approve(ctx, approver, ApproveInput{SessionID: init.SessionID, ApproveNonce: "wrong"})
	wantCode(t, err, CodeInvalidApproveNonce)

	// Expiry is reported before a nonce mismatch.
	env.clock.Advance(2 * time.Minute)
	_, err = env.handshake.Approve(ctx, approver, ApproveInput{SessionID: init.SessionID, ApproveNonce: "wrong"})
	wantCode(t, err, CodeSessionExpired)
}

func TestQRApproveConcurrentExactlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	approver := Caller{PrincipalID: "companion-1"}
	env.grant(t, approver.PrincipalID, domain.RoleVolunteer)
	init, parsed := initAndParse(t, env, nil, domain.RoleVolunteer, false, approver)

	var wins, nonceFailures atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.handshake.Approve(ctx, approver, ApproveInput{SessionID: init.SessionID, ApproveNonce: parsed.ApproveNonce})
			switch {
			case err == nil:
				wins.Add(1)
			case CodeOf(err) == CodeInvalidApproveNonce:
				nonceFailures.Add(1)
			default:
				t.Errorf("unexpected approve error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one approval, got %d", wins.Load())
	}
	if nonceFailures.Load() != 7 {
		t.Fatalf("expected 7 INVALID_APPROVE_NONCE failures, got %d", nonceFailures.Load())
	}
}

func TestQRParseIsIdempotentAndRejectsTampering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	approver := Caller{PrincipalID: "companion-1"}

	init, first := initAndParse(t, env, nil, domain.RoleVolunteer, false, approver)
	second, err := env.handshake.Parse(ctx, approver, init.EncodedPayload)
	if err != nil {
		t.Fatalf("second parse: %v", err)
	}
	if second.ApproveNonce != first.ApproveNonce {
		t.Fatal("repeated scans must return the same nonce")
	}

	idx := len(init.EncodedPayload) - 5
	replacement := "A"
	if init.EncodedPayload[idx] == 'A' {
		replacement = "B"
	}
	tampered := init.EncodedPayload[:idx] + replacement + init.EncodedPayload[idx+1:]
	_, err = env.handshake.Parse(ctx, approver, tampered)
	wantCode(t, err, CodeInvalidQRCode)

	_, err = env.handshake.Parse(ctx, approver, "not-a-payload")
	wantCode(t, err, CodeInvalidQRCode)

	foreign := env.codec.Encode("11111111-1111-1111-1111-111111111111")
	_, err = env.handshake.Parse(ctx, approver, foreign)
	wantCode(t, err, CodeInvalidQRCode)

	_, err = env.handshake.Parse(ctx, Caller{}, init.EncodedPayload)
	wantCode(t, err, CodeUnauthorized)
}

func TestQRParseExpiredSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	init, err := env.broker.Init(ctx, nil, QRInitInput{RequiredRole: domain.RoleVolunteer})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	env.clock.Advance(time.Hour)
	_, err = env.handshake.Parse(ctx, Caller{PrincipalID: "p"}, init.EncodedPayload)
	wantCode(t, err, CodeSessionExpired)
}

func TestQRApproveWithoutAutoBindRequiresRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	approver := Caller{PrincipalID: "companion-1"}
	init, parsed := initAndParse(t, env, nil, domain.RoleSocialWorker, false, approver)

	_, err := env.handshake.Approve(ctx, approver, ApproveInput{SessionID: init.SessionID, ApproveNonce: parsed.ApproveNonce})
	wantCode(t, err, CodeForbidden)

	_, err = env.handshake.Approve(ctx, approver, ApproveInput{SessionID: init.SessionID, ApproveNonce: parsed.ApproveNonce, SelectedRole: domain.RoleVolunteer})
	wantCode(t, err, CodeInvalidRole)
}

func TestQRPrivilegedAutoBindRequiresAdminInitiator(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	approver := Caller{PrincipalID: "companion-1"}
	sw := Caller{PrincipalID: "social-worker"}
	admin := Caller{PrincipalID: "root"}
	env.grant(t, sw.PrincipalID, domain.RoleSocialWorker)
	env.grant(t, admin.PrincipalID, domain.RoleAdmin)

	init, parsed := initAndParse(t, env, &sw, domain.RoleAdmin, true, approver)
	_, err := env.handshake.Approve(ctx, approver, ApproveInput{SessionID: init.SessionID, ApproveNonce: parsed.ApproveNonce})
	wantCode(t, err, CodeForbidden)

	init, parsed = initAndParse(t, env, &admin, domain.RoleAdmin, true, approver)
	out, err := env.handshake.Approve(ctx, approver, ApproveInput{SessionID: init.SessionID, ApproveNonce: parsed.ApproveNonce})
	if err != nil {
		t.Fatalf("approve with admin initiator: %v", err)
	}
	if out.UserInfo.SelectedRole != domain.RoleAdmin {
		t.Fatalf("unexpected selected role: %s", out.UserInfo.SelectedRole)
	}
}

func TestQRAutoBindCannotEscalateGuest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guest := Caller{PrincipalID: "guest-1"}
	volunteer := Caller{PrincipalID: "volunteer-1"}
	env.grant(t, volunteer.PrincipalID, domain.RoleVolunteer)

	_, err := env.bindings.Add(ctx, guest, AddRoleBindingInput{UserPrincipalID: guest.PrincipalID, Role: domain.RoleSocialWorker})
	wantCode(t, err, CodeForbidden)

	_, err = env.broker.Init(ctx, nil, QRInitInput{RequiredRole: domain.RoleSocialWorker, AutoBind: true})
	wantCode(t, err, CodeForbidden)

	for _, initiator := range []Caller{guest, volunteer} {
		init, parsed := initAndParse(t, env, &initiator, domain.RoleSocialWorker, true, guest)
		_, err = env.handshake.Approve(ctx, guest, ApproveInput{SessionID: init.SessionID, ApproveNonce: parsed.ApproveNonce})
		wantCode(t, err, CodeForbidden)
	}

	roles, err := env.rbac.ResolveRoles(ctx, guest.PrincipalID)
	if err != nil {
		t.Fatalf("resolve roles: %v", err)
	}
	if len(roles) != 0 {
		t.Fatalf("guest must stay without roles, got %v", roles)
	}
	_, err = env.bindings.Add(ctx, guest, AddRoleBindingInput{UserPrincipalID: "victim", Role: domain.RoleSocialWorker})
	wantCode(t, err, CodeForbidden)
}

func TestQRTicketConsumeIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	approver := Caller{PrincipalID: "companion-1"}
	env.grant(t, approver.PrincipalID, domain.RoleVolunteer)
	init, parsed := initAndParse(t, env, nil, domain.RoleVolunteer, false, approver)
	approved, err := env.handshake.Approve(ctx, approver, ApproveInput{SessionID: init.SessionID, ApproveNonce: parsed.ApproveNonce})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	consumed, err := env.issuer.Consume(ctx, approved.Ticket)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if consumed.PrincipalID != approver.PrincipalID || consumed.SessionID != init.SessionID {
		t.Fatalf("unexpected consumed ticket: %+v", consumed)
	}
	_, err = env.issuer.Consume(ctx, approved.Ticket)
	wantCode(t, err, CodeInvalidTicket)

	status, err := env.broker.Status(ctx, init.SessionID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != domain.QRSessionConsumed || status.Ticket != "" {
		t.Fatalf("expected consumed without ticket, got %+v", status)
	}

	_, err = env.issuer.Consume(ctx, "garbage")
	wantCode(t, err, CodeInvalidTicket)
}

func TestQRTicketExpires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	approver := Caller{PrincipalID: "companion-1"}
	env.grant(t, approver.PrincipalID, domain.RoleVolunteer)
	init, parsed := initAndParse(t, env, nil, domain.RoleVolunteer, false, approver)
	approved, err := env.handshake.Approve(ctx, approver, ApproveInput{SessionID: init.SessionID, ApproveNonce: parsed.ApproveNonce})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	env.clock.Advance(3 * time.Minute)
	_, err = env.issuer.Consume(ctx, approved.Ticket)
	wantCode(t, err, CodeInvalidTicket)
}

func TestQRInitValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.broker.Init(ctx, nil, QRInitInput{RequiredRole: "superuser"})
	wantCode(t, err, CodeInvalidRole)
	_, err = env.broker.Init(ctx, nil, QRInitInput{})
	wantCode(t, err, CodeValidation)
	_, err = env.broker.Init(ctx, nil, QRInitInput{RequiredRole: domain.RoleVolunteer, AutoBind: true})
	wantCode(t, err, CodeForbidden)

	init, err := env.broker.Init(ctx, nil, QRInitInput{RequiredRole: " Volunteer "})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.HasPrefix(init.EncodedPayload, "QRL1.") || strings.Contains(init.EncodedPayload, "secret") {
		t.Fatalf("unexpected payload %q", init.EncodedPayload)
	}
}

func TestQRStatusUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.broker.Status(context.Background(), "11111111-1111-1111-1111-111111111111")
	wantCode(t, err, CodeSessionNotFound)
	_, err = env.broker.Status(context.Background(), "nope")
	wantCode(t, err, CodeSessionNotFound)
}

func TestQRStatusConcurrentPollsAfterExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	init, err := env.broker.Init(ctx, nil, QRInitInput{RequiredRole: domain.RoleVolunteer})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	env.clock.Advance(2 * time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := env.broker.Status(ctx, init.SessionID)
			if err != nil {
				t.Errorf("status: %v", err)
				return
			}
			if st.Status != domain.QRSessionExpired {
				t.Errorf("expected expired, got %s", st.Status)
			}
		}()
	}
	wg.Wait()
}
