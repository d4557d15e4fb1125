package main

import (
	"errors"
	"os"
	"os/signal"
	"path"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/multios/introspect/internal/logutil"
)

// cleanup removes exported snapshot files older than timeLimit. The exports
// tree is <root>/<process id>/<snapshot id>.json.
func cleanup(exportsPath string, timeLimit time.Time) error {
	dirEntries, err := os.ReadDir(exportsPath)
	if err != nil {
		return err
	}

	for _, entry := range dirEntries {
		if entry.IsDir() {
			if err := cleanup(path.Join(exportsPath, entry.Name()), timeLimit); err != nil {
				return err
			}
			continue
		}

		fileInfo, err := entry.Info()
		if err != nil {
			// The file went away between the listing and the stat.
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}

		if timeLimit.After(fileInfo.ModTime()) {
			err = os.Remove(path.Join(exportsPath, entry.Name()))
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func main() {
	exportsPath, ok := os.LookupEnv("INTROSPECT_EXPORTS_PATH")
	if !ok {
		exportsPath = "/var/lib/introspect/exports"
	}

	exportRetentionDays, ok := os.LookupEnv("INTROSPECT_EXPORT_RETENTION_DAYS")
	if !ok {
		exportRetentionDays = "30"
	}

	logutil.ConfigureLogger()

	err := sentry.Init(sentry.ClientOptions{})
	if err != nil {
		log.Fatal().Err(err).Msg("can't initialize sentry")
	}

	retentionDays, err := strconv.ParseInt(exportRetentionDays, 10, 64)
	if err != nil {
		log.Fatal().Err(err).Msg("can't parse retention days")
	}

	retention := time.Hour * 24 * time.Duration(retentionDays)

	c := cron.New()
	_, err = c.AddFunc("@daily", func() {
		err := cleanup(exportsPath, time.Now().Add(-retention))
		if err != nil {
			sentry.CaptureException(err)
			log.Error().Err(err).Msg("error cleaning up exports")
		}
	})
	if err != nil {
		log.Fatal().Err(err).Msg("can't set up cron function")
	}

	exitSignal := make(chan os.Signal, 1)
	signal.Notify(exitSignal, os.Interrupt)

	go func() {
		<-exitSignal

		c.Stop()
	}()

	c.Run()
}
