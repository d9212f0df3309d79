package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestArchiveKey(t *testing.T) {
	sentAt := time.Date(2026, 8, 26, 14, 30, 0, 0, time.UTC)
	msg := ArchivedMessage{
		ContactID: "c-123",
		StepIndex: 2,
		SentAt:    sentAt,
	}

	key := archiveKey(msg)

	assert.Equal(t, "messages/2026-08-26/c-123/step-2-1787754600.json", key)
}

func TestArchiveKey_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("plus5", 5*60*60)
	// 02:00 on the 27th local time is still the 26th in UTC.
	sentAt := time.Date(2026, 8, 27, 2, 0, 0, 0, loc)
	msg := ArchivedMessage{ContactID: "c-1", StepIndex: 0, SentAt: sentAt}

	key := archiveKey(msg)

	assert.Contains(t, key, "messages/2026-08-26/")
}

func TestNoopArchive(t *testing.T) {
	key, err := NoopArchive{}.Store(t.Context(), ArchivedMessage{})

	assert.NoError(t, err)
	assert.Empty(t, key)
}
