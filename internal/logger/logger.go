package logger

import (
	"github.com/sirupsen/logrus"
)

const (
	FieldApp      = "app"
	FieldCategory = "category"
)

var (
	Log       *logrus.Logger
	AppLog    *logrus.Entry
	MainLog   *logrus.Entry
	CfgLog    *logrus.Entry
	CollLog   *logrus.Entry
	SchedLog  *logrus.Entry
	SeqLog    *logrus.Entry
	WriterLog *logrus.Entry
	LinkLog   *logrus.Entry
	EmuLog    *logrus.Entry
	APILog    *logrus.Entry
)

func init() {
	Log = logrus.New()
	Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	AppLog = Log.WithField(FieldApp, "FlowLabel")
	MainLog = AppLog.WithField(FieldCategory, "Main")
	CfgLog = AppLog.WithField(FieldCategory, "CFG")
	CollLog = AppLog.WithField(FieldCategory, "Collector")
	SchedLog = AppLog.WithField(FieldCategory, "Scheduler")
	SeqLog = AppLog.WithField(FieldCategory, "Sequencer")
	WriterLog = AppLog.WithField(FieldCategory, "Writer")
	LinkLog = AppLog.WithField(FieldCategory, "Link")
	EmuLog = AppLog.WithField(FieldCategory, "Emulator")
	APILog = AppLog.WithField(FieldCategory, "API")
}

// Configure applies the level and caller reporting from the log config block.
// An empty level keeps the logrus default (info).
func Configure(level string, reportCaller bool) error {
	if level != "" {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return err
		}
		Log.SetLevel(lvl)
	}
	Log.SetReportCaller(reportCaller)
	return nil
}
