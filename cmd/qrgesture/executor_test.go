package main

import (
	"context"
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runCall struct {
	stdin string
	name  string
	args  []string
}

// fakeRunner records invocations and replies from a per-command table.
type fakeRunner struct {
	calls []runCall
	out   map[string][]byte
	errs  map[string]error
}

func (f *fakeRunner) Run(_ context.Context, stdin string, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, runCall{stdin: stdin, name: name, args: args})
	key := name
	if len(args) > 0 {
		key = name + " " + args[0]
	}
	return f.out[key], f.errs[key]
}

func newTestExecutor(t *testing.T, goos string, run *fakeRunner, have ...string) *platformExecutor {
	t.Helper()
	e := newPlatformExecutor(goos, ExecutorConfig{SaveDir: t.TempDir()}, discardLogger())
	e.run = run
	e.lookPath = func(name string) (string, error) {
		for _, h := range have {
			if h == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", errors.New("not found")
	}
	return e
}

func TestExecutor_OpenURLPerPlatform(t *testing.T) {
	tests := []struct {
		goos string
		name string
		args []string
	}{
		{"linux", "xdg-open", []string{"https://x.y"}},
		{"darwin", "open", []string{"https://x.y"}},
		{"windows", "rundll32", []string{"url.dll,FileProtocolHandler", "https://x.y"}},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			run := &fakeRunner{}
			e := newTestExecutor(t, tt.goos, run)
			require.NoError(t, e.OpenURL(context.Background(), "https://x.y"))
			require.Len(t, run.calls, 1)
			assert.Equal(t, tt.name, run.calls[0].name)
			assert.Equal(t, tt.args, run.calls[0].args)
		})
	}
}

func TestExecutor_UnsupportedPlatform(t *testing.T) {
	e := newTestExecutor(t, "plan9", &fakeRunner{})

	var unsupported errUnsupportedPlatform
	assert.True(t, errors.As(e.OpenURL(context.Background(), "x"), &unsupported))
	assert.True(t, errors.As(e.CopyText(context.Background(), "x"), &unsupported))
	assert.True(t, errors.As(e.JoinWifi(context.Background(), WifiJoin{SSID: "a"}), &unsupported))
}

func TestExecutor_CopyTextUsesFirstAvailableTool(t *testing.T) {
	run := &fakeRunner{}
	e := newTestExecutor(t, "linux", run, "xclip", "xsel")

	require.NoError(t, e.CopyText(context.Background(), "hello"))
	require.Len(t, run.calls, 1)
	assert.Equal(t, runCall{stdin: "hello", name: "xclip", args: []string{"-selection", "clipboard"}}, run.calls[0])
}

func TestExecutor_CopyTextWithoutTool(t *testing.T) {
	e := newTestExecutor(t, "linux", &fakeRunner{})
	assert.Error(t, e.CopyText(context.Background(), "hello"))
}

func TestExecutor_SaveAndOpenWritesFile(t *testing.T) {
	run := &fakeRunner{}
	e := newTestExecutor(t, "linux", run)

	require.NoError(t, e.SaveAndOpen(context.Background(), "BEGIN:VCARD\nEND:VCARD", ".vcf"))
	require.Len(t, run.calls, 1)

	path := run.calls[0].args[0]
	assert.Equal(t, e.cfg.SaveDir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "contact-"))
	assert.Equal(t, ".vcf", filepath.Ext(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "BEGIN:VCARD\nEND:VCARD", string(b))
}

func TestExecutor_ComposeSMS(t *testing.T) {
	run := &fakeRunner{}
	e := newTestExecutor(t, "linux", run)

	require.NoError(t, e.ComposeSMS(context.Background(), "+1555", "hi there"))
	assert.Empty(t, run.calls, "only logged by default")

	e.cfg.SMSOpen = true
	require.NoError(t, e.ComposeSMS(context.Background(), "+1555", "hi there"))
	require.Len(t, run.calls, 1)
	assert.Equal(t, []string{"sms:+1555?body=hi+there"}, run.calls[0].args)

	assert.Error(t, e.ComposeSMS(context.Background(), "", "x"))
}

func TestJoinWifi_Nmcli(t *testing.T) {
	run := &fakeRunner{}
	e := newTestExecutor(t, "linux", run)

	require.NoError(t, e.JoinWifi(context.Background(), WifiJoin{SSID: "Home", Password: "pw", Hidden: true}))
	require.Len(t, run.calls, 1)
	assert.Equal(t, "nmcli", run.calls[0].name)
	assert.Equal(t, []string{"dev", "wifi", "connect", "Home", "password", "pw", "hidden", "yes"}, run.calls[0].args)

	run.calls = nil
	require.NoError(t, e.JoinWifi(context.Background(), WifiJoin{SSID: "Open"}))
	assert.Equal(t, []string{"dev", "wifi", "connect", "Open"}, run.calls[0].args)

	assert.Error(t, e.JoinWifi(context.Background(), WifiJoin{}), "empty SSID")
}

func TestJoinWifi_NmcliFailure(t *testing.T) {
	run := &fakeRunner{errs: map[string]error{"nmcli dev": errors.New("exit status 10")}}
	e := newTestExecutor(t, "linux", run)
	assert.Error(t, e.JoinWifi(context.Background(), WifiJoin{SSID: "Home"}))
}

const macPorts = `
Hardware Port: Ethernet
Device: en0
Ethernet Address: aa:bb:cc:dd:ee:ff

Hardware Port: Wi-Fi
Device: en1
Ethernet Address: 11:22:33:44:55:66
`

func TestParseMacWifiInterface(t *testing.T) {
	assert.Equal(t, "en1", parseMacWifiInterface([]byte(macPorts)))
	assert.Equal(t, "en2", parseMacWifiInterface([]byte("Hardware Port: AirPort\nDevice: en2\n")))
	assert.Equal(t, "", parseMacWifiInterface([]byte("Hardware Port: Ethernet\nDevice: en0\n")))
}

func TestJoinWifi_Networksetup(t *testing.T) {
	run := &fakeRunner{out: map[string][]byte{"networksetup -listallhardwareports": []byte(macPorts)}}
	e := newTestExecutor(t, "darwin", run)

	require.NoError(t, e.JoinWifi(context.Background(), WifiJoin{SSID: "Home", Password: "pw"}))
	require.Len(t, run.calls, 2)
	assert.Equal(t, []string{"-setairportnetwork", "en1", "Home", "pw"}, run.calls[1].args)
}

func TestJoinWifi_NetworksetupReportsErrorInOutput(t *testing.T) {
	run := &fakeRunner{out: map[string][]byte{
		"networksetup -listallhardwareports": []byte(macPorts),
		"networksetup -setairportnetwork":    []byte("Could not find network Home."),
	}}
	e := newTestExecutor(t, "darwin", run)
	assert.Error(t, e.JoinWifi(context.Background(), WifiJoin{SSID: "Home"}))
}

func TestJoinWifi_Netsh(t *testing.T) {
	run := &fakeRunner{}
	e := newTestExecutor(t, "windows", run)

	require.NoError(t, e.JoinWifi(context.Background(), WifiJoin{SSID: "Home", Password: "pw", AuthType: "WPA"}))
	require.Len(t, run.calls, 2)
	assert.Equal(t, "netsh", run.calls[0].name)
	assert.True(t, strings.HasPrefix(run.calls[0].args[3], "filename="))
	assert.Equal(t, []string{"wlan", "connect", "name=Home"}, run.calls[1].args)

	// The temporary profile is removed afterwards.
	_, err := os.Stat(strings.TrimPrefix(run.calls[0].args[3], "filename="))
	assert.True(t, os.IsNotExist(err))
}

func TestWlanProfileXML(t *testing.T) {
	tests := []struct {
		w       WifiJoin
		auth    string
		enc     string
		keyType string
	}{
		{WifiJoin{SSID: "a", Password: "pw", AuthType: "WPA"}, "WPA2PSK", "AES", "passPhrase"},
		{WifiJoin{SSID: "a", Password: "pw", AuthType: "SAE"}, "WPA3SAE", "AES", "passPhrase"},
		{WifiJoin{SSID: "a", Password: "pw", AuthType: "WEP"}, "open", "WEP", "networkKey"},
		{WifiJoin{SSID: "a", AuthType: "nopass"}, "open", "none", ""},
		{WifiJoin{SSID: "a", Password: "pw"}, "WPA2PSK", "AES", "passPhrase"},
		{WifiJoin{SSID: "a", Password: "pw", AuthType: "EAP"}, "WPA2PSK", "AES", "passPhrase"},
	}
	for _, tt := range tests {
		b, err := wlanProfileXML(tt.w)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(string(b), xml.Header))

		var p wlanProfile
		require.NoError(t, xml.Unmarshal(b, &p))
		assert.Equal(t, "a", p.SSIDName)
		assert.Equal(t, tt.auth, p.Security.Authentication, tt.w.AuthType)
		assert.Equal(t, tt.enc, p.Security.Encryption, tt.w.AuthType)
		if tt.keyType == "" {
			assert.Nil(t, p.Security.SharedKey)
		} else {
			require.NotNil(t, p.Security.SharedKey)
			assert.Equal(t, tt.keyType, p.Security.SharedKey.KeyType)
			assert.Equal(t, "pw", p.Security.SharedKey.KeyMaterial)
		}
	}
}
