package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/internlink/realtime/internal/config"
	"github.com/internlink/realtime/internal/conn"
	"github.com/internlink/realtime/internal/convo"
	"github.com/internlink/realtime/internal/convo/history"
	"github.com/internlink/realtime/internal/dispatch"
	"github.com/internlink/realtime/internal/log"
	"github.com/internlink/realtime/internal/presence"
	"github.com/internlink/realtime/internal/restapi"
	"github.com/internlink/realtime/internal/router"
	"github.com/internlink/realtime/internal/session"
	"github.com/internlink/realtime/internal/typing"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "chat-cli: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		token      string
		userID     string
		peerID     string
		overrides  config.Config
	)

	cmd := &cobra.Command{
		Use:   "chat-cli",
		Short: "Interactive terminal client for the realtime conversation subsystem",
		RunE: func(cmd *cobra.Command, args []string) error {
			bootstrap := log.New("info")
			cfg, path, err := config.Load(bootstrap, configPath)
			if err != nil {
				return fmt.Errorf("load config (%s): %w", path, err)
			}
			cfg.UpdateFrom(overrides)

			logger := log.New(cfg.LogLevel)

			var sess *session.Session
			switch {
			case token != "":
				if sess, err = session.FromToken(token); err != nil {
					return err
				}
			case userID != "":
				sess = session.New(userID, "student", "")
			default:
				return fmt.Errorf("either --token or --user is required")
			}
			sess.Offline = cfg.OfflineMode

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, logger, sess, peerID)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&token, "token", "", "access token issued at login")
	cmd.Flags().StringVar(&userID, "user", "", "user id (when no token is available)")
	cmd.Flags().StringVar(&peerID, "peer", "", "counterpart user id to open on start")
	cmd.Flags().StringVar(&overrides.Endpoint, "endpoint", "", "realtime WebSocket endpoint")
	cmd.Flags().StringVar(&overrides.RestBaseURL, "rest", "", "collaborator REST base URL")
	cmd.Flags().BoolVar(&overrides.OfflineMode, "offline", false, "skip realtime connection entirely")

	return cmd
}

func run(ctx context.Context, cfg config.Config, logger *zerolog.Logger, sess *session.Session, peerID string) error {
	rt := router.New(logger)

	mgr := conn.NewManager(conn.Options{
		Endpoint:      cfg.Endpoint,
		DialTimeout:   cfg.DialTimeout,
		BackoffBase:   cfg.BackoffBase,
		BackoffCap:    cfg.BackoffCap,
		MaxReconnects: cfg.MaxReconnects,
		Logger:        logger,
	}, rt.HandleFrame)

	storeOpts := []convo.Option{
		convo.WithAckTimeout(cfg.AckTimeout),
		convo.WithLogger(logger),
	}
	if cfg.HistoryPath != "" {
		archive, err := history.Open(cfg.HistoryPath)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		storeOpts = append(storeOpts, convo.WithArchive(archive))
	}
	store := convo.NewStore(sess.UserID, storeOpts...)
	defer store.Close()
	store.Bind(rt)

	send := func(event string, payload any) error {
		return mgr.Send(ctx, event, payload)
	}

	typist := typing.New(cfg.TypingDebounce, cfg.TypingExpiry, send, typing.WithLogger(logger))
	typist.Bind(rt)

	tracker := presence.New(sess.UserID, send, presence.WithLogger(logger))
	tracker.Bind(mgr, rt)

	dispOpts := []dispatch.Option{dispatch.WithTyping(typist), dispatch.WithLogger(logger)}
	if cfg.RestBaseURL != "" {
		dispOpts = append(dispOpts, dispatch.WithReconciler(restapi.New(cfg.RestBaseURL, sess.Token, logger)))
	}
	disp := dispatch.New(sess, mgr, store, dispOpts...)

	rt.Subscribe(router.KindNewMessage, func(ev *router.Event) {
		fmt.Printf("[%s] %s: %s\n", ev.Message.ConversationID, ev.Message.SenderID, ev.Message.Body)
	})
	rt.Subscribe(router.KindTypingStarted, func(ev *router.Event) {
		fmt.Printf("[%s] %s is typing...\n", ev.ConversationID, ev.UserID)
	})
	rt.Subscribe(router.KindPresenceChanged, func(ev *router.Event) {
		if ev.UserID == sess.UserID {
			fmt.Printf("* presence: %s\n", ev.Status)
		}
	})

	if err := mgr.Connect(ctx, sess); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer mgr.Disconnect()

	if peerID != "" {
		if err := disp.JoinConversation(ctx, peerID); err != nil {
			logger.Warn().Err(err).Str("peer", peerID).Msg("join failed")
		}
		store.OpenConversation(convo.DirectID(sess.UserID, peerID))
	}

	fmt.Println("Commands: /open <user>, /leave <user>, /status <label>, /read, /quit. Anything else sends to the open peer.")
	return inputLoop(ctx, sess, peerID, store, disp, tracker)
}

func inputLoop(ctx context.Context, sess *session.Session, peerID string, store *convo.Store, disp *dispatch.Dispatcher, tracker *presence.Tracker) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			switch {
			case text == "/quit":
				return nil
			case strings.HasPrefix(text, "/open "):
				peerID = strings.TrimSpace(strings.TrimPrefix(text, "/open "))
				if err := disp.JoinConversation(ctx, peerID); err != nil {
					fmt.Printf("! join: %v\n", err)
					continue
				}
				store.OpenConversation(convo.DirectID(sess.UserID, peerID))
				for _, m := range store.Messages(convo.DirectID(sess.UserID, peerID)) {
					fmt.Printf("[%s] %s: %s (%s)\n", m.ConversationID, m.SenderID, m.Body, m.Status)
				}
			case strings.HasPrefix(text, "/leave "):
				target := strings.TrimSpace(strings.TrimPrefix(text, "/leave "))
				if err := disp.LeaveConversation(ctx, target); err != nil {
					fmt.Printf("! leave: %v\n", err)
				}
			case strings.HasPrefix(text, "/status "):
				tracker.SetStatus(presence.Status(strings.TrimSpace(strings.TrimPrefix(text, "/status "))))
			case text == "/read":
				if peerID != "" {
					if err := disp.MarkRead(ctx, peerID); err != nil {
						fmt.Printf("! mark read: %v\n", err)
					}
				}
			default:
				if peerID == "" {
					fmt.Println("! no open conversation, use /open <user>")
					continue
				}
				disp.Keystroke(peerID)
				if _, err := disp.SendMessage(ctx, peerID, text); err != nil {
					fmt.Printf("! send (retryable): %v\n", err)
				}
			}
		}
	}
}
