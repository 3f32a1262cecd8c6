package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"strings"
)

// joinWifiNmcli joins through NetworkManager.
func joinWifiNmcli(ctx context.Context, e *platformExecutor, w WifiJoin) error {
	args := []string{"dev", "wifi", "connect", w.SSID}
	if w.Password != "" {
		args = append(args, "password", w.Password)
	}
	if w.Hidden {
		args = append(args, "hidden", "yes")
	}
	if _, err := e.run.Run(ctx, "", "nmcli", args...); err != nil {
		return fmt.Errorf("nmcli connect %q: %w", w.SSID, err)
	}
	return nil
}

// joinWifiNetworksetup joins on macOS. networksetup exits 0 even when the join
// fails, so its output is checked as well.
func joinWifiNetworksetup(ctx context.Context, e *platformExecutor, w WifiJoin) error {
	out, err := e.run.Run(ctx, "", "networksetup", "-listallhardwareports")
	if err != nil {
		return fmt.Errorf("list hardware ports: %w", err)
	}
	iface := parseMacWifiInterface(out)
	if iface == "" {
		return errors.New("wi-fi interface not found")
	}

	args := []string{"-setairportnetwork", iface, w.SSID}
	if w.Password != "" {
		args = append(args, w.Password)
	}
	out, err = e.run.Run(ctx, "", "networksetup", args...)
	if err != nil {
		return fmt.Errorf("networksetup join %q: %w", w.SSID, err)
	}
	if msg := strings.TrimSpace(string(out)); msg != "" {
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "error") || strings.Contains(lower, "could not") || strings.Contains(lower, "failed") {
			return fmt.Errorf("networksetup join %q: %s", w.SSID, msg)
		}
	}
	return nil
}

// parseMacWifiInterface finds the device line following the Wi-Fi (or AirPort)
// hardware port in `networksetup -listallhardwareports` output.
func parseMacWifiInterface(out []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(out))
	inWifi := false
	for sc.Scan() {
		line := sc.Text()
		if strings.Contains(line, "Wi-Fi") || strings.Contains(line, "AirPort") {
			inWifi = true
			continue
		}
		if inWifi {
			if _, dev, ok := strings.Cut(line, "Device: "); ok {
				return strings.TrimSpace(dev)
			}
		}
	}
	return ""
}

// joinWifiNetsh adds a temporary WLAN profile and connects to it.
func joinWifiNetsh(ctx context.Context, e *platformExecutor, w WifiJoin) error {
	profile, err := wlanProfileXML(w)
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(ExpandPath(e.cfg.SaveDir), "wifi-profile-*.xml")
	if err != nil {
		return fmt.Errorf("create wlan profile: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(profile); err != nil {
		f.Close()
		return fmt.Errorf("write wlan profile: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close wlan profile: %w", err)
	}

	if _, err := e.run.Run(ctx, "", "netsh", "wlan", "add", "profile", "filename="+f.Name()); err != nil {
		return fmt.Errorf("netsh add profile: %w", err)
	}
	if _, err := e.run.Run(ctx, "", "netsh", "wlan", "connect", "name="+w.SSID); err != nil {
		return fmt.Errorf("netsh connect %q: %w", w.SSID, err)
	}
	return nil
}

// WLAN profile schema (subset) for netsh.
type wlanProfile struct {
	XMLName        xml.Name `xml:"http://www.microsoft.com/networking/WLAN/profile/v1 WLANProfile"`
	Name           string   `xml:"name"`
	SSIDName       string   `xml:"SSIDConfig>SSID>name"`
	NonBroadcast   bool     `xml:"SSIDConfig>nonBroadcast"`
	ConnectionType string   `xml:"connectionType"`
	ConnectionMode string   `xml:"connectionMode"`
	Security       wlanSec  `xml:"MSM>security"`
}

type wlanSec struct {
	Authentication string         `xml:"authEncryption>authentication"`
	Encryption     string         `xml:"authEncryption>encryption"`
	UseOneX        bool           `xml:"authEncryption>useOneX"`
	SharedKey      *wlanSharedKey `xml:"sharedKey,omitempty"`
}

type wlanSharedKey struct {
	KeyType     string `xml:"keyType"`
	Protected   bool   `xml:"protected"`
	KeyMaterial string `xml:"keyMaterial"`
}

// wlanProfileXML renders a profile for w. T: values map to netsh
// authentication modes; anything unrecognized is treated as WPA2-Personal.
func wlanProfileXML(w WifiJoin) ([]byte, error) {
	p := wlanProfile{
		Name:           w.SSID,
		SSIDName:       w.SSID,
		NonBroadcast:   w.Hidden,
		ConnectionType: "ESS",
		ConnectionMode: "auto",
	}

	switch strings.ToUpper(w.AuthType) {
	case "NOPASS", "":
		if w.Password == "" {
			p.Security = wlanSec{Authentication: "open", Encryption: "none"}
			break
		}
		fallthrough
	case "WPA", "WPA2", "WPA/WPA2":
		p.Security = wlanSec{
			Authentication: "WPA2PSK",
			Encryption:     "AES",
			SharedKey:      &wlanSharedKey{KeyType: "passPhrase", KeyMaterial: w.Password},
		}
	case "WPA3", "SAE":
		p.Security = wlanSec{
			Authentication: "WPA3SAE",
			Encryption:     "AES",
			SharedKey:      &wlanSharedKey{KeyType: "passPhrase", KeyMaterial: w.Password},
		}
	case "WEP":
		p.Security = wlanSec{
			Authentication: "open",
			Encryption:     "WEP",
			SharedKey:      &wlanSharedKey{KeyType: "networkKey", KeyMaterial: w.Password},
		}
	default:
		p.Security = wlanSec{
			Authentication: "WPA2PSK",
			Encryption:     "AES",
			SharedKey:      &wlanSharedKey{KeyType: "passPhrase", KeyMaterial: w.Password},
		}
	}

	out, err := xml.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal wlan profile: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
