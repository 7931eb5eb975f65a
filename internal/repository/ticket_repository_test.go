package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestChooseQueueID(t *testing.T) {
	previous := strPtr("queue-support")
	override := strPtr("queue-sales")

	tests := []struct {
		name     string
		fallback *string
		override *string
		want     *string
	}{
		{"reopen keeps previous queue", previous, nil, previous},
		{"override wins over previous queue", previous, override, override},
		{"override assigns when no previous queue", nil, override, override},
		{"no queue stays unassigned", nil, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chooseQueueID(tt.fallback, tt.override))
		})
	}
}
