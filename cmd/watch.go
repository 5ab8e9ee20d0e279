package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"comfycollab/internal/app/api"
	"comfycollab/internal/app/presence"
	"comfycollab/internal/app/session"
	"comfycollab/internal/app/transport"
	"comfycollab/internal/app/user"
	"comfycollab/internal/configs"
	"comfycollab/internal/pkg/logx"
	"comfycollab/internal/pkg/randx"
)

// pinHeartbeat re-sends pinned presence so it outlives the cursor and
// selection TTLs.
const pinHeartbeat = 2 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Join a canvas headlessly and log remote presence",
	Long: `Log in, join the presence channel of one canvas and log every change
to the remote cursors, selections and roster. Optionally pin a cursor and a
node selection so other collaborators can see this client.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().String("canvas", "", "Canvas (workflow) id to join")
	watchCmd.Flags().String("server", "", "Server URL (default COMFYCOLLAB_URL or http://localhost:8080)")
	watchCmd.Flags().String("username", "", "Account name")
	watchCmd.Flags().String("password", "", "Account password (or COMFYCOLLAB_PASSWORD)")
	watchCmd.Flags().String("token", "", "Existing access token (or COMFYCOLLAB_TOKEN)")
	watchCmd.Flags().String("cursor", "", "Pin a cursor at x,y (normalized 0..1)")
	watchCmd.Flags().StringSlice("select", nil, "Node ids to select once connected")
	_ = watchCmd.MarkFlagRequired("canvas")
}

func runWatch(cmd *cobra.Command, args []string) error {
	initLogger(cmd, true)

	cfg, err := configs.LoadPresenceConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if server, _ := cmd.Flags().GetString("server"); server != "" {
		cfg.ServerURL = server
	}

	canvas, _ := cmd.Flags().GetString("canvas")
	if !randx.IsValidCanvasID(canvas) {
		return fmt.Errorf("invalid canvas id %q", canvas)
	}

	var pin pinned
	if raw, _ := cmd.Flags().GetString("cursor"); raw != "" {
		x, y, err := parsePoint(raw)
		if err != nil {
			return err
		}
		pin.cursor = &[2]float64{x, y}
	}
	pin.selection, _ = cmd.Flags().GetStringSlice("select")

	tc, err := cfg.Transport(canvas)
	if err != nil {
		return err
	}

	logger := logx.Component("watch").With().Str("canvas_id", canvas).Logger()

	channel := presence.NewChannel(
		transport.NewDialer(tc),
		presence.WithConfig(cfg.Channel()),
		presence.WithWorkflowSink(func(n presence.WorkflowNotice) {
			logger.Info().Str("user_id", n.UserID).Str("username", n.Username).Int("bytes", len(n.WorkflowData)).Msg("Workflow changed")
		}),
	)
	sess := session.New(api.New(cfg.ServerURL), channel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	identity, state, err := authenticate(ctx, cmd, sess)
	if err != nil {
		return err
	}
	defer sess.Invalidate()

	logger.Info().Str("user_id", identity.ID).Str("state", state.Status.String()).Msg("Joined canvas")

	overlay := presence.NewOverlay(channel, headlessLocator{}, logRenderer{logger: logger})
	go overlay.Run(ctx)

	changes, cancel := channel.Subscribe()
	defer cancel()

	heartbeat := time.NewTicker(pinHeartbeat)
	defer heartbeat.Stop()

	announced := false
	for {
		select {
		case <-ctx.Done():
			return nil

		case change, ok := <-changes:
			if !ok {
				return nil
			}
			if change.Has(presence.ChangeRoster) {
				logRoster(logger, channel.Roster())
			}
			if !change.Has(presence.ChangeConnection) {
				continue
			}

			st := channel.State()
			logger.Info().Str("state", st.Status.String()).Msg("Presence state changed")
			switch {
			case st.Status == presence.Disconnected:
				return errors.New("presence connection closed")
			case st.Connected() && !announced:
				announced = true
				pin.announce(channel)
			case !st.Connected():
				announced = false
			}

		case <-heartbeat.C:
			if channel.Connected() {
				pin.announce(channel)
			}
		}
	}
}

// authenticate prefers a token and falls back to username and password.
func authenticate(ctx context.Context, cmd *cobra.Command, sess *session.Session) (user.Identity, presence.ConnectionState, error) {
	token := flagOrEnv(cmd, "token", "COMFYCOLLAB_TOKEN")
	if token != "" {
		id, st, err := sess.Restore(ctx, token)
		if err != nil {
			return id, st, fmt.Errorf("token rejected: %w", err)
		}
		return id, st, nil
	}

	username, _ := cmd.Flags().GetString("username")
	password := flagOrEnv(cmd, "password", "COMFYCOLLAB_PASSWORD")
	if username == "" || password == "" {
		return user.Identity{}, presence.ConnectionState{}, errors.New("either --token or --username and --password are required")
	}

	id, st, err := sess.Login(ctx, username, password)
	if err != nil {
		return id, st, fmt.Errorf("login failed: %w", err)
	}
	return id, st, nil
}

// pinned is the presence this client holds still: a cursor, a selection or both.
type pinned struct {
	cursor    *[2]float64
	selection []string
}

func (p pinned) announce(channel *presence.Channel) {
	if p.cursor != nil {
		channel.EmitCursor(p.cursor[0], p.cursor[1])
	}
	if len(p.selection) > 0 {
		channel.EmitSelection(p.selection)
	}
}

func flagOrEnv(cmd *cobra.Command, flag, env string) string {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v
	}
	return os.Getenv(env)
}

func parsePoint(raw string) (float64, float64, error) {
	xs, ys, ok := strings.Cut(raw, ",")
	if !ok {
		return 0, 0, fmt.Errorf("cursor must be x,y: %q", raw)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid cursor x: %w", err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid cursor y: %w", err)
	}
	return x, y, nil
}

// headlessLocator has no canvas; every node gets an empty box so selections
// are still reported.
type headlessLocator struct{}

func (headlessLocator) NodeBounds(string) (presence.Rect, bool) {
	return presence.Rect{}, true
}

type logRenderer struct {
	logger zerolog.Logger
}

func (r logRenderer) Render(cursors []presence.CursorMark, selections []presence.SelectionMark) {
	for _, c := range cursors {
		r.logger.Info().
			Str("user", c.Label).
			Str("color", c.Color).
			Float64("left_pct", c.Left).
			Float64("top_pct", c.Top).
			Msg("Cursor")
	}
	for _, s := range selections {
		ids := make([]string, len(s.Boxes))
		for i, b := range s.Boxes {
			ids[i] = b.NodeID
		}
		r.logger.Info().Str("user", s.Label).Strs("nodes", ids).Msg("Selection")
	}
	r.logger.Debug().Int("cursors", len(cursors)).Int("selections", len(selections)).Msg("Overlay rendered")
}

func logRoster(logger zerolog.Logger, roster map[string]user.Identity) {
	names := make([]string, 0, len(roster))
	for _, id := range roster {
		names = append(names, id.DisplayLabel())
	}
	slices.Sort(names)
	logger.Info().Strs("users", names).Msg("Roster updated")
}
