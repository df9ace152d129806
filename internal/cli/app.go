package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/soyeahso/querydesk/internal/api"
	"github.com/soyeahso/querydesk/internal/chat"
	"github.com/soyeahso/querydesk/internal/config"
	"github.com/soyeahso/querydesk/internal/conn"
	"github.com/soyeahso/querydesk/internal/domain"
	"github.com/soyeahso/querydesk/internal/hooks"
	"github.com/soyeahso/querydesk/internal/session"
	"github.com/soyeahso/querydesk/internal/store"
	"github.com/soyeahso/querydesk/internal/version"
)

func statePath() string {
	if cfg.State.Path != "" {
		return cfg.State.Path
	}
	return paths.StateDB
}

func openState() (*store.DB, error) {
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}
	db, err := store.Open(statePath(), log)
	if err != nil {
		return nil, fmt.Errorf("opening local state: %w", err)
	}
	return db, nil
}

func newAPIClient() *api.Client {
	return api.New(cfg.Server.BaseURL, cfg.HTTP, log,
		api.WithToken(cfg.Server.Token),
		api.WithUserAgent(version.UserAgent()),
	)
}

func newClock() *domain.Clock {
	return domain.NewClock(cfg.Display.Timezone, cfg.Display.ClockFormat)
}

func checkConfig() error {
	issues := config.Validate(&cfg)
	if len(issues) == 0 {
		return nil
	}
	for _, issue := range issues {
		log.Error().Str("path", issue.Path).Msg(issue.Message)
	}
	return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
}

// app is the wiring shared by the commands that talk to the pipeline.
type app struct {
	db          *store.DB
	state       *store.StateStore
	transcripts *store.TranscriptStore
	user        *session.Context
	client      *api.Client
	hooks       *hooks.Manager
	conv        *chat.Conversation
	session     *session.Session
}

func newApp(ctx context.Context) (*app, error) {
	if err := checkConfig(); err != nil {
		return nil, err
	}
	db, err := openState()
	if err != nil {
		return nil, err
	}
	a := &app{
		db:          db,
		state:       store.NewStateStore(db),
		transcripts: store.NewTranscriptStore(db),
		client:      newAPIClient(),
		hooks:       hooks.NewManager(log),
	}
	a.user, err = session.LoadContext(a.state, cfg.Server.Platform)
	if err != nil {
		db.Close()
		return nil, err
	}

	opts := []conn.Option{conn.WithHeader("User-Agent", version.UserAgent())}
	if cfg.Server.Token != "" {
		opts = append(opts, conn.WithHeader("Authorization", "Bearer "+cfg.Server.Token))
	}
	mgr := conn.NewManager(cfg.Transport, log, opts...)

	a.conv = chat.New(a.hooks, log, chat.WithClock(newClock()), chat.WithCleaner(a.client))
	a.session = session.New(ctx, a.user, cfg.Server.SocketEndpoint(), a.client, mgr, a.conv, a.hooks, log,
		session.WithStateStore(a.state),
		session.WithTranscriptCache(a.transcripts),
	)
	return a, nil
}

// lastThread is the thread the previous run left bound.
func (a *app) lastThread() string {
	return a.state.GetOr(store.KeyThreadID, "")
}

func (a *app) Close() {
	a.session.Close()
	a.db.Close()
}

// describeErr renders an error as a one-line notice. Side-channel failures
// show their generic operation text.
func describeErr(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return err.Error()
}

func notice(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "! "+format+"\n", args...)
}
