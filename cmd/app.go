package cmd

import (
	"fmt"
	"net/http"

	"sketchpad/internal/config"
	"sketchpad/internal/kv"
	"sketchpad/internal/learn"
	"sketchpad/internal/log"
	"sketchpad/internal/sample"
	"sketchpad/internal/shape"
	"sketchpad/internal/store"
)

// app bundles the components shared by the session and the data commands.
type app struct {
	cfg        *config.Config
	store      *store.Store
	validator  *sample.Validator
	classifier *shape.Classifier
	engine     *learn.Engine
}

func newApp(cfg *config.Config) (*app, error) {
	local, err := kv.Open(cfg.Store.LocalDir)
	if err != nil {
		return nil, fmt.Errorf("open local storage: %w", err)
	}

	// Only a nil interface disables the remote.
	var remote store.Remote
	if cfg.Store.RemoteURL != "" {
		remote = store.NewHTTPRemote(cfg.Store.RemoteURL, &http.Client{})
		log.Infof("App: Sharing training data with %s", cfg.Store.RemoteURL)
	}

	validator := sample.NewValidator(cfg.Shape.Count)
	classifier := shape.NewClassifier(cfg.Shape)
	return &app{
		cfg:        cfg,
		store:      store.New(local, remote, validator, store.OptionsFrom(cfg.Store)),
		validator:  validator,
		classifier: classifier,
		engine:     learn.New(learn.OptionsFrom(cfg.Learning), classifier, validator),
	}, nil
}

// Close lets pending remote writes finish, then releases local storage.
func (a *app) Close() error {
	a.engine.Wait()
	a.store.Wait()
	return a.store.Close()
}
