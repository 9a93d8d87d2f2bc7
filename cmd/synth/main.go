package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"synthnet/internal/core/domain"
	"synthnet/internal/core/services"
	"synthnet/internal/infrastructure/engine"
	signalclient "synthnet/internal/infrastructure/signal"
	webrtcinfra "synthnet/internal/infrastructure/webrtc"
	"synthnet/pkg/backup"
	"synthnet/pkg/config"
	"synthnet/pkg/logger"
	"synthnet/pkg/utils"
)

func main() {
	serverURL := flag.String("server", "ws://localhost:8081/ws", "signaling relay WebSocket URL")
	clientID := flag.String("id", "", "client ID (generated when empty)")
	flag.Parse()

	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/synthnet/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	localID := domain.ClientID(*clientID)
	if localID == "" {
		localID = domain.ClientID(utils.GenerateSynthID())
	}

	audio := engine.NewTrackingEngine(log)

	// Saved banks survive restarts when a bank file is configured
	var banks *backup.Manager
	if cfg.Peer.BankFile != "" {
		banks = backup.NewManager(backup.NewFileStorage(cfg.Peer.BankFile))

		restored := make(map[int]engine.BankState)
		if err := banks.LoadSnapshot(context.Background(), &restored); err != nil {
			log.Infow("no bank snapshot restored", "path", cfg.Peer.BankFile, "reason", err)
		} else {
			audio.ImportBanks(restored)
			log.Infow("bank snapshot restored", "banks", len(restored))
		}
	}

	protocol := services.NewProtocolHandler(audio, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The manager signals through the relay client; the client's
	// handlers feed negotiation traffic back into the manager. Both
	// close over the manager variable, assigned below.
	var manager *webrtcinfra.Manager

	client := signalclient.NewClient(*serverURL, localID, signalclient.ClientHandlers{
		OnControllerInfo: func(controllerID string) {
			if controllerID == "" {
				log.Infow("no active controller")
				return
			}
			target := domain.ClientID(controllerID)
			manager.ResetReconnectBudget(target)
			if !manager.IsConnected(target) {
				go func() {
					if err := manager.InitiateConnection(ctx, target); err != nil {
						log.Warnw("connection attempt failed", "target", target, "error", err)
					}
				}()
			}
		},
		OnOffer: func(source string, data json.RawMessage) {
			go func() {
				if err := manager.ProcessOffer(ctx, data, domain.ClientID(source)); err != nil {
					log.Warnw("offer processing failed", "source", source, "error", err)
				}
			}()
		},
		OnAnswer: func(source string, data json.RawMessage) {
			go func() {
				if err := manager.ProcessAnswer(ctx, data, domain.ClientID(source)); err != nil {
					log.Warnw("answer processing failed", "source", source, "error", err)
				}
			}()
		},
		OnICECandidate: func(source string, data json.RawMessage) {
			if err := manager.AddRemoteICECandidate(data, domain.ClientID(source)); err != nil {
				log.Debugw("ice candidate rejected", "source", source, "error", err)
			}
		},
		OnControllerKicked: func(source, newControllerID string) {
			log.Infow("controller replaced", "old", source, "new", newControllerID)
		},
		OnServerError: func(message string) {
			log.Warnw("signaling server error", "message", message)
		},
	}, log)

	manager = webrtcinfra.NewManager(localID, webrtcinfra.Config{
		HeartbeatInterval:    cfg.Peer.HeartbeatInterval,
		ReconnectDelay:       cfg.Peer.ReconnectDelay,
		MaxReconnectAttempts: cfg.Peer.MaxReconnectAttempts,
		DisconnectGrace:      cfg.Peer.DisconnectGrace,
		ICEConfigURL:         cfg.Peer.ConfigURL,
	}, client, log)

	manager.OnMessage(func(target domain.ClientID, channelLabel string, payload []byte) {
		protocol.HandleMessage(channelLabel, payload, func(label string, data []byte) bool {
			return manager.SendDataOnChannel(target, label, data)
		})
	})
	manager.OnStatus(func(target domain.ClientID, status webrtcinfra.ConnectionStatus) {
		log.Infow("connection status changed", "target", target, "status", status)
	})

	clientDone := make(chan error, 1)
	go func() {
		clientDone <- client.Run(ctx)
	}()

	log.Infow("synth started", "id", localID, "server", *serverURL)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-clientDone:
		if err != nil {
			log.Errorw("signaling client stopped", "error", err)
		}
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	cancel()
	manager.Close()
	client.Close()

	if banks != nil {
		if err := banks.SaveSnapshot(context.Background(), audio.ExportBanks()); err != nil {
			log.Errorw("failed to save bank snapshot", "error", err)
		}
	}

	log.Info("synth stopped")
}
