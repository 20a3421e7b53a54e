package main

import (
	"testing"

	"github.com/saunaworks/sauna-supervisor/internal/config"
	"github.com/saunaworks/sauna-supervisor/internal/supervisor"
)

func TestExtractConfigPath(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"-config", "/etc/sauna.yaml"}, "/etc/sauna.yaml"},
		{[]string{"--config", "/etc/sauna.yaml"}, "/etc/sauna.yaml"},
		{[]string{"-config=/etc/sauna.yaml"}, "/etc/sauna.yaml"},
		{[]string{"--config=/etc/sauna.yaml"}, "/etc/sauna.yaml"},
		{[]string{"-http", ":9090"}, ""},
		{[]string{"-http", ":9090", "-config", "/x.yaml"}, "/x.yaml"},
		{nil, ""},
		{[]string{"-config"}, ""},
	}
	for _, c := range cases {
		if got := extractConfigPath(c.args); got != c.want {
			t.Errorf("extractConfigPath(%v) = %q, want %q", c.args, got, c.want)
		}
	}
}

func TestResolveAuthoritativeSource(t *testing.T) {
	if got := resolveAuthoritativeSource(config.McbStatusSourceMQTT); got != supervisor.AuthoritativeMQTT {
		t.Errorf("mqtt source: got %v, want AuthoritativeMQTT", got)
	}
	if got := resolveAuthoritativeSource(config.McbStatusSourceDevice); got != supervisor.AuthoritativeDevice {
		t.Errorf("device source: got %v, want AuthoritativeDevice", got)
	}
}
