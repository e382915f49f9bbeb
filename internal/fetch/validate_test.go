package fetch

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Accepts(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://example.com/a?b=c", "https://example.com/a?b=c"},
		{"HTTP://Example.com/path#frag", "http://Example.com/path"},
		{"  http://8.8.8.8:8080/  ", "http://8.8.8.8:8080/"},
		{"https://1.example.com/", "https://1.example.com/"},
		{"https://sub.domain.example.org", "https://sub.domain.example.org"},
	}
	for _, tt := range tests {
		u, err := Validate(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, u.String())
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		in   string
		want Code
	}{
		{"", CodeInvalidURL},
		{"example.com", CodeInvalidURL},
		{"ftp://example.com/", CodeInvalidURL},
		{"file:///etc/passwd", CodeInvalidURL},
		{"javascript:alert(1)", CodeInvalidURL},
		{"http://", CodeInvalidURL},
		{"http://%zz/", CodeInvalidURL},
		{"http://localhost/", CodeBlocked},
		{"http://LOCALHOST./", CodeBlocked},
		{"http://api.localhost/", CodeBlocked},
		{"http://0.0.0.0/", CodeBlocked},
		{"http://127.0.0.1/", CodeBlocked},
		{"http://127.8.9.10/", CodeBlocked},
		{"http://10.0.0.1/", CodeBlocked},
		{"http://172.16.5.4/", CodeBlocked},
		{"http://192.168.1.1/", CodeBlocked},
		{"http://169.254.169.254/latest/meta-data/", CodeBlocked},
		{"http://100.64.0.1/", CodeBlocked},
		{"http://224.0.0.1/", CodeBlocked},
		{"http://[::1]/", CodeBlocked},
		{"http://[2606:4700::1]/", CodeBlocked},
		{"http://2130706433/", CodeBlocked},
		{"http://0x7f000001/", CodeBlocked},
		{"http://127.1/", CodeBlocked},
		{"http://0177.0.0.1/", CodeBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := Validate(tt.in)
			assert.Equal(t, tt.want, CodeOf(err), "err: %v", err)
		})
	}
}

func TestIsBlockedIP(t *testing.T) {
	blockedIPs := []string{"127.0.0.1", "10.9.8.7", "172.31.255.255", "192.168.0.1", "169.254.1.1",
		"0.1.2.3", "255.255.255.255", "::1", "::", "fc00::1", "fd12:3456::1", "fe80::1", "ff02::1",
		"::ffff:127.0.0.1", "::ffff:10.0.0.1",
		"64:ff9b::a9fe:a9fe", "64:ff9b::a00:1", "64:ff9b:1::8.8.8.8", "2002:a9fe:a9fe::1", "2002:c0a8:101::",
		"::127.0.0.1", "::10.0.0.1"}
	for _, s := range blockedIPs {
		assert.True(t, IsBlockedIP(net.ParseIP(s)), s)
	}

	public := []string{"93.184.216.34", "8.8.8.8", "1.1.1.1", "172.32.0.1", "2606:4700::1111",
		"64:ff9b::808:808", "2002:808:808::1"}
	for _, s := range public {
		assert.False(t, IsBlockedIP(net.ParseIP(s)), s)
	}
	assert.True(t, IsBlockedIP(nil))
}
