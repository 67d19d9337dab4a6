package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoopBudget(t *testing.T) {
	defaults := DefaultLoopDefaults()
	paid := &Session{UserID: "u1", SubscriptionID: "sub_1"}
	free := &Session{UserID: "u2"}

	tests := []struct {
		name     string
		settings ModelSettings
		session  *Session
		want     int
	}{
		{"anonymous", ModelSettings{}, nil, 4},
		{"signed in without subscription", ModelSettings{}, free, 4},
		{"privileged", ModelSettings{}, paid, 16},
		{"custom key default", ModelSettings{CustomAPIKey: "sk"}, nil, 50},
		{"custom key override", ModelSettings{CustomAPIKey: "sk", CustomMaxLoops: 7}, nil, 7},
		{"custom key wins over privilege", ModelSettings{CustomAPIKey: "sk", CustomMaxLoops: 3}, paid, 3},
		{"override ignored without key", ModelSettings{CustomMaxLoops: 99}, nil, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LoopBudget(defaults, tt.settings, tt.session))
		})
	}
}
