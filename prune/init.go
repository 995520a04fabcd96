package prune

import (
	"github.com/sirupsen/logrus"

	"github.com/rai-project/go-prune/config"
	"github.com/rai-project/go-prune/logger"
)

var (
	log = logrus.WithField("pkg", "go-prune")
)

func init() {
	config.AfterInit(func() {
		log = logger.New().WithField("pkg", "go-prune")
	})
}
