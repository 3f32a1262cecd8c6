package main

import "time"

// Interaction timing defaults
const (
	defaultDetectionTTL = 5 * time.Second // Keep a decoded action alive this long without a new decode
	defaultCooldown     = 2 * time.Second // Minimum interval between two fires of the button
	defaultStatusTTL    = 3 * time.Second // How long a dispatch status message stays visible
	defaultTickHz       = 10              // Housekeeping tick (status/detection expiry without frames)
)

// Frame geometry defaults (capture is requested at 1280x720)
const (
	defaultFrameWidth  = 1280
	defaultFrameHeight = 720

	defaultButtonX1 = 50
	defaultButtonY1 = 50
	defaultButtonX2 = 350
	defaultButtonY2 = 150
)

// Capture/feed defaults
const (
	defaultCaptureDevice  = "/dev/video0"
	defaultFeedPath       = "/tmp/qrgesture.feed"
	defaultStallTimeoutMS = 5000 // No frame within this window is treated as a failed frame grab
	maxFrameLineBytes     = 1 << 20
)

// Dispatch defaults
const (
	defaultDispatchTimeoutMS = 15000
	defaultMapsURL           = "https://www.google.com/maps/search/?api=1&query={lat},{lon}"
)

// Service defaults
const (
	defaultIPCSocket   = "/tmp/qrgesture.sock"
	defaultIPCRate     = 60.0 // events per second per connection
	defaultIPCBurst    = 30
	defaultHTTPPort    = 3002
	defaultHistoryPath = "~/.local/state/qrgesture/history.db"
)
