package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTransferDuration(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tr := Transfer{StartedAt: start}
	assert.Zero(t, tr.Duration())

	tr.FinishedAt = start.Add(1500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, tr.Duration())
}
