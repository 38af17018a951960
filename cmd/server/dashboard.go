package main

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/beastlymac/ccoin/pkg/chaintracks"
)

// DashboardHandler serves a simple status dashboard
type DashboardHandler struct {
	server *Server
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(server *Server) *DashboardHandler {
	return &DashboardHandler{
		server: server,
	}
}

// HandleStatus renders the status dashboard
func (h *DashboardHandler) HandleStatus(c *fiber.Ctx) error {
	tip := h.server.cm.GetTip()
	height := h.server.cm.GetHeight()

	var tipHash string
	var tipChainwork string
	if tip != nil {
		tipHash = tip.Hash.String()
		tipChainwork = tip.ChainWork.String()
	} else {
		tipHash = "N/A"
		tipChainwork = "N/A"
	}

	network, err := h.server.cm.GetNetwork()
	if err != nil {
		network = "unknown"
	}

	peers := h.server.cm.GetPeers()
	peerCount := len(peers)

	checkpointMode := "enforced"
	if h.server.cm.Checkpoints().Bypassed() {
		checkpointMode = "bypassed"
	}
	lastCheckpoint := "none reached"
	if cp, ok := h.server.cm.LastCheckpoint(); ok {
		lastCheckpoint = fmt.Sprintf("%d (%s)", cp.Height, cp.Hash.String())
	}

	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <title>Chaintracks Status</title>
    <meta http-equiv="refresh" content="10">
    <style>
        body {
            font-family: 'Courier New', monospace;
            background: #1a1a1a;
            color: #00ff00;
            padding: 20px;
            margin: 0;
        }
        .container {
            max-width: 1200px;
            margin: 0 auto;
        }
        h1 {
            color: #00ff00;
            border-bottom: 2px solid #00ff00;
            padding-bottom: 10px;
        }
        .section {
            background: #0d0d0d;
            border: 1px solid #00ff00;
            padding: 20px;
            margin: 20px 0;
            border-radius: 5px;
        }
        .label {
            color: #808080;
            display: inline-block;
            width: 150px;
        }
        .value {
            color: #00ff00;
            font-weight: bold;
        }
        .hash {
            font-family: 'Courier New', monospace;
            word-break: break-all;
        }
        .peer-list {
            margin-top: 10px;
        }
        .peer {
            background: #1a1a1a;
            border-left: 3px solid #00ff00;
            padding: 10px;
            margin: 5px 0;
        }
        .peer-id {
            color: #00cccc;
            font-size: 0.85em;
        }
        .peer-addr {
            color: #808080;
            font-size: 0.75em;
            margin-left: 20px;
        }
        .status-indicator {
            display: inline-block;
            width: 10px;
            height: 10px;
            border-radius: 50%%;
            background: #00ff00;
            margin-right: 10px;
            animation: pulse 2s infinite;
        }
        @keyframes pulse {
            0%%, 100%% { opacity: 1; }
            50%% { opacity: 0.5; }
        }
        .timestamp {
            color: #808080;
            font-size: 0.9em;
            text-align: right;
            margin-top: 20px;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1><span class="status-indicator"></span>Chaintracks Status</h1>

        <div class="section">
            <h2>Chain Status</h2>
            <div><span class="label">Network:</span><span class="value">%s</span></div>
            <div><span class="label">Current Height:</span><span class="value">%d</span></div>
            <div><span class="label">Tip Hash:</span><span class="value hash">%s</span></div>
            <div><span class="label">Chainwork:</span><span class="value">%s</span></div>
        </div>

        <div class="section">
            <h2>Checkpoints</h2>
            <div><span class="label">Mode:</span><span class="value">%s</span></div>
            <div><span class="label">Last Reached:</span><span class="value hash">%s</span></div>
            <div><span class="label">Estimated Height:</span><span class="value">%d</span></div>
            <div><span class="label">Sync Progress:</span><span class="value">%.2f%%</span></div>
        </div>

        <div class="section">
            <h2>P2P Network</h2>
            <div><span class="label">Connected Peers:</span><span class="value">%d</span></div>
            <div class="peer-list">
                %s
            </div>
        </div>

        <div class="timestamp">
            Last updated: %s (auto-refresh every 10s)
        </div>
    </div>
</body>
</html>`,
		network,
		height,
		tipHash,
		tipChainwork,
		checkpointMode,
		lastCheckpoint,
		h.server.cm.EstimatedHeight(),
		h.server.cm.SyncProgress()*100,
		peerCount,
		h.renderPeerList(peers),
		time.Now().Format("2006-01-02 15:04:05 MST"),
	)

	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.SendString(html)
}

// renderPeerList generates HTML for the peer list
func (h *DashboardHandler) renderPeerList(peers []chaintracks.PeerInfo) string {
	if len(peers) == 0 {
		return `<div style="color: #808080; font-style: italic;">No peers connected</div>`
	}

	html := ""
	for _, peer := range peers {
		name := peer.Name
		if name == "unknown" || name == "" {
			name = "Unknown Peer"
		}

		addrs := ""
		for _, addr := range peer.Addrs {
			addrs += fmt.Sprintf(`<div class="peer-addr">%s</div>`, addr)
		}

		html += fmt.Sprintf(`
			<div class="peer">
				<div><strong>%s</strong></div>
				<div class="peer-id">%s</div>
				%s
			</div>
		`, name, peer.ID, addrs)
	}

	return html
}
