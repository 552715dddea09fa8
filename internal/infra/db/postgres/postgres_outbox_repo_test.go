//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/domain/ports/repository"
)

func TestOutboxRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepo(testPool)
	cleanup(t)

	payload, _ := json.Marshal(model.SMSPayload{To: "254712345678", Message: "hi"})
	tm := NewTxManager(testPool)
	err := tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return repo.Enqueue(ctx, tx,
			&model.OutboxMessage{Kind: model.OutboxSMS, Payload: payload},
			&model.OutboxMessage{Kind: model.OutboxWebhook, Payload: json.RawMessage(`{"event":"payment.completed"}`)},
		)
	})
	require.NoError(t, err)

	claimed, err := repo.ClaimDue(ctx, 10, 60)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	again, err := repo.ClaimDue(ctx, 10, 60)
	require.NoError(t, err)
	assert.Empty(t, again, "leased messages are not claimed twice")

	require.NoError(t, repo.MarkSent(ctx, claimed[0].ID))
	require.NoError(t, repo.MarkFailed(ctx, claimed[1].ID, "boom", 0, false))

	retry, err := repo.ClaimDue(ctx, 10, 60)
	require.NoError(t, err)
	require.Len(t, retry, 1)
	assert.Equal(t, claimed[1].ID, retry[0].ID)
	assert.Equal(t, 1, retry[0].Attempts)
	require.NotNil(t, retry[0].LastError)
	assert.Equal(t, "boom", *retry[0].LastError)

	require.NoError(t, repo.MarkFailed(ctx, retry[0].ID, "still down", 0, true))
	none, err := repo.ClaimDue(ctx, 10, 60)
	require.NoError(t, err)
	assert.Empty(t, none, "dead messages stay parked")
}

func TestNotificationAndAuditRepos(t *testing.T) {
	ctx := context.Background()
	cleanup(t)
	uid := uuid.NewString()
	seedProfile(t, uid, "", "")

	notes := NewNotificationRepo(testPool)
	kind := "subscription_reminder_2026-11-01"
	exists, err := notes.ExistsForUser(ctx, nil, uid, kind)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, notes.Save(ctx, nil, &model.Notification{UserID: uid, Type: kind, Message: "renew soon"}))
	exists, err = notes.ExistsForUser(ctx, nil, uid, kind)
	require.NoError(t, err)
	assert.True(t, exists)

	audit := NewAuditRepo(testPool)
	e := &model.AuditEntry{Event: model.EventCallbackAccepted, UserID: &uid, Metadata: map[string]any{"checkout_request_id": "ws_CO_1"}}
	require.NoError(t, audit.Append(ctx, nil, e))
	assert.Len(t, e.ID, 26)

	var meta string
	require.NoError(t, testPool.QueryRow(ctx, `SELECT metadata::text FROM audit_logs WHERE id=$1`, e.ID).Scan(&meta))
	assert.JSONEq(t, `{"checkout_request_id":"ws_CO_1"}`, meta)
}
