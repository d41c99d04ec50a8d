package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tax-intake/internal/authflow"
	"github.com/sells-group/tax-intake/internal/catalog"
	"github.com/sells-group/tax-intake/internal/editor"
	"github.com/sells-group/tax-intake/internal/field"
	"github.com/sells-group/tax-intake/internal/imageprep"
	"github.com/sells-group/tax-intake/internal/session"
	"github.com/sells-group/tax-intake/internal/store"
	"github.com/sells-group/tax-intake/internal/upload"
	"github.com/sells-group/tax-intake/internal/workspace"
	"github.com/sells-group/tax-intake/pkg/taxapi"
)

// intakeEnv holds the wired components every command works through.
type intakeEnv struct {
	Store     *store.SQLiteStore
	API       taxapi.Client
	Session   *session.Context
	Catalog   *catalog.Catalog
	Editor    *editor.Editor
	Uploads   *upload.Orchestrator
	Workspace *workspace.Workspace
	Flow      *authflow.Flow
}

// Close releases resources held by the environment.
func (e *intakeEnv) Close() {
	if e.Workspace != nil {
		e.Workspace.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv opens the durable store, restores cookies from it and builds
// the client stack. When initSession is set the session is initialised against
// the backend. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string, initSession bool, prompter upload.PasswordPrompter) (*intakeEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	jar, err := session.NewPersistentJar(ctx, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	client := taxapi.NewClient(cfg.API.AuthBaseURL, cfg.API.APIBaseURL,
		taxapi.WithCookieJar(jar),
		taxapi.WithTimeout(cfg.API.Timeout()),
		taxapi.WithRateLimit(cfg.API.RateLimit),
		taxapi.WithMaxAttempts(cfg.API.MaxRetries),
	)

	sess := session.New(st, store.NewMemory(), client,
		session.WithJar(jar),
		session.WithCustomersTTL(cfg.Session.CustomersTTL()),
		session.WithBasicInfoTTL(cfg.Session.BasicInfoTTL()),
	)

	cat := catalog.New(client)
	formatter := field.NewFormatter(
		field.WithCurrencySymbol(cfg.Editor.CurrencySymbol),
		field.WithAnonymize(cfg.Editor.Anonymize),
	)
	ed := editor.New(formatter, cat, client)

	uploads := upload.New(client, prompter, upload.Options{
		MaxFileBytes:      cfg.Upload.MaxFileBytes(),
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		Image: imageprep.Options{
			MaxDimension: cfg.Upload.MaxImageDimension,
			Contrast:     cfg.Upload.Contrast,
			Quality:      cfg.Upload.JPEGQuality,
		},
	})

	ws := workspace.New(client, cat, sess, ed,
		workspace.WithShowAllFields(cfg.Editor.ShowAllFields),
		workspace.WithUploader(uploads),
	)
	ws.Start(ctx)

	env := &intakeEnv{
		Store:     st,
		API:       client,
		Session:   sess,
		Catalog:   cat,
		Editor:    ed,
		Uploads:   uploads,
		Workspace: ws,
		Flow:      authflow.New(client, sess),
	}

	if initSession {
		if err := env.Flow.Init(ctx); err != nil {
			zap.L().Warn("session init failed", zap.Error(err))
		}
	}
	return env, nil
}

// requireSignIn initialises the session and fails when nobody is signed in.
func requireSignIn(ctx context.Context, prompter upload.PasswordPrompter) (*intakeEnv, error) {
	env, err := initEnv(ctx, "client", true, prompter)
	if err != nil {
		return nil, err
	}
	if !env.Session.SignedIn() {
		env.Close()
		return nil, eris.New("not signed in; run `tax-intake login` first")
	}
	return env, nil
}

// loadWorkspace requires a sign-in and loads the selected customer.
func loadWorkspace(ctx context.Context, prompter upload.PasswordPrompter) (*intakeEnv, error) {
	env, err := requireSignIn(ctx, prompter)
	if err != nil {
		return nil, err
	}
	if err := env.Workspace.Reload(ctx); err != nil {
		env.Close()
		return nil, userError(err)
	}
	if env.Workspace.Customer() == "" {
		env.Close()
		return nil, eris.New("no customer selected; run `tax-intake customers select <name>`")
	}
	return env, nil
}

// userError turns a forced sign-out into its notice text.
func userError(err error) error {
	if ended, ok := session.AsEnded(err); ok {
		return eris.New(ended.Notice.Message)
	}
	return err
}
