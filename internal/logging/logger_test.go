package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewAppliesLevelAndFormat(t *testing.T) {
	l := New(Config{Level: "debug", Format: "json", Output: "stdout"})
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	_, ok := l.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)
}

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	l := New(Config{Level: "not-a-level"})
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestNewDefault(t *testing.T) {
	l := NewDefault("orchestrator")
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}
