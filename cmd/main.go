package main

import (
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"

	"walletqueue/internal/app"
	"walletqueue/internal/config"
)

func main() {
	var cfg config.Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		log.Fatalf("Fail parsing env config %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err = validate.Struct(cfg); err != nil {
		log.Fatalf("Fail config validation %v", err)
	}

	// Collaborators come from the host SDKs; the bare daemon starts with
	// none registered and listeners attach them through app.Providers().
	application := app.New(&cfg, app.Collaborators{})
	application.Run()
}
