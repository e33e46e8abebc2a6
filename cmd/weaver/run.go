package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"leaflet-weaver/pkg/errors"
	"leaflet-weaver/pkg/gcode"
	"leaflet-weaver/pkg/journal"
	"leaflet-weaver/pkg/log"
	"leaflet-weaver/pkg/metrics"
	"leaflet-weaver/pkg/motion"
	"leaflet-weaver/pkg/remote"
	"leaflet-weaver/pkg/scheduler"
	"leaflet-weaver/pkg/serial"
	"leaflet-weaver/pkg/trigger"
	"leaflet-weaver/pkg/weaver"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the weave on the machine, cleaning on request",
	Long: `Streams the planned weave to a controller (--device), or writes it to a
file (--output), or executes it against a simulated machine when neither is
given. Cleaning can be requested over the control API (--remote-addr) or by
touching a trigger file (--trigger). With --journal every finished step is
recorded so that --resume <run-id> continues an interrupted run.`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.String("device", "", `serial device or unix socket of the controller, or "auto"`)
	f.String("output", "", "write G-code to this file instead of a device")
	f.String("journal", "", "SQLite run journal")
	f.String("resume", "", "resume this journalled run")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address")
	f.String("remote-addr", "", "serve the JSON-RPC control API on this address")
	f.String("trigger", "", "request a cleaning whenever this file is written")
	rootCmd.AddCommand(runCmd)
}

// schedulerRef lets the control API be built before the scheduler it
// reports on.
type schedulerRef struct {
	*scheduler.Scheduler
}

func runRun(cmd *cobra.Command, _ []string) error {
	bindFlags(cmd, "device", "output", "journal", "metrics-addr", "remote-addr", "trigger")
	s := loadSettings()
	logger := setupLogger(s)
	plan, err := loadPlan(s, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sink, closeSink, err := openSink(s, plan, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	wm := metrics.NewWeaveMetrics()
	seq, cleaner, err := plan.Rig(motion.Tee(sink, wm), logger.WithPrefix("cleaning"))
	if err != nil {
		return err
	}

	resume, _ := cmd.Flags().GetString("resume")
	runID, startAt := uuid.NewString(), 0
	var jr *journal.Journal
	if s.Journal != "" {
		if jr, err = journal.Open(ctx, s.Journal, logger.WithPrefix("journal")); err != nil {
			return err
		}
		defer jr.Close()
		if resume != "" {
			runID = resume
			startAt, err = plan.ResumeRun(ctx, jr, resume)
		} else {
			runID, err = jr.BeginRun(ctx, plan.Job.Name, plan.Queue.Len())
		}
		if err != nil {
			return err
		}
	} else if resume != "" {
		return fmt.Errorf("--resume needs --journal")
	}
	runLog := logger.With(log.Fields{"run": runID})
	wm.SetPlan(plan.Queue.Len(), plan.Summary().Skipped, startAt)

	ref := &schedulerRef{}
	var rs *remote.Server
	observers := []scheduler.Observer{wm.Observer()}
	if jr != nil {
		// Journal writes outlive cancellation so the halt point is kept.
		observers = append(observers, jr.Observer(context.Background(), runID))
	}
	if s.RemoteAddr != "" {
		rs = remote.New(remote.Config{
			Addr:       s.RemoteAddr,
			Controller: ref,
			Cancel:     cancel,
			RunID:      runID,
			Logger:     runLog.WithPrefix("remote"),
		})
		observers = append(observers, rs.Observer())
	}

	sched, err := scheduler.New(plan.Queue, seq, cleaner, scheduler.Options{
		StartAt:  startAt,
		Observer: scheduler.Observers(observers...),
		Logger:   runLog.WithPrefix("scheduler"),
	})
	if err != nil {
		return err
	}
	ref.Scheduler = sched

	if s.Trigger != "" {
		tw, err := trigger.New(s.Trigger, sched, 0, runLog.WithPrefix("trigger"))
		if err != nil {
			return err
		}
		if err := tw.Start(); err != nil {
			return err
		}
		defer tw.Stop()
	}

	// Requests are accepted from here on.
	done := sched.Start(ctx)

	if s.MetricsAddr != "" {
		cfg := metrics.DefaultServerConfig()
		cfg.Address = s.MetricsAddr
		ms := metrics.NewServer(wm, cfg)
		go serve("metrics", ms.ListenAndServe, runLog)
		defer shutdown(ms.Shutdown)
	}
	if rs != nil {
		go serve("remote", rs.ListenAndServe, runLog)
		defer rs.Stop()
	}

	_, runErr := done.Wait(0)
	status := journal.StatusDone
	if runErr != nil {
		status = journal.StatusHalted
		wm.RecordError(string(errorCode(runErr)))
	} else if err := seq.Park(); err != nil {
		runErr = errors.SinkError(err, plan.Queue.Len())
		status = journal.StatusHalted
	}
	if jr != nil {
		if err := jr.FinishRun(context.Background(), runID, status, runErr); err != nil {
			runLog.WithError(err).Warn("journal not closed")
		}
	}
	if runErr != nil {
		runLog.WithField("resume_at", sched.Index()).Error("run halted")
		return runErr
	}
	runLog.WithField("cleanings", sched.Cleanings()).Info("weave complete")
	return nil
}

// openSink picks the motion sink: a controller stream, a G-code file or a
// simulated machine.
func openSink(s Settings, plan *weaver.Plan, logger *log.Logger) (motion.Sink, func(), error) {
	opts := plan.GCodeOptions()
	device := s.Device
	if device == "" {
		device = plan.Config.Output.Device
	}

	switch {
	case device != "":
		port, err := openPort(device, plan.Config.Output.BaudRate)
		if err != nil {
			return nil, nil, err
		}
		logger.WithFields(log.Fields{"device": port.Device(), "socket": port.IsSocket()}).Info("controller connected")
		stream := gcode.NewStreamSink(port, opts, logger.WithPrefix("stream"))
		if err := stream.Send("G21"); err != nil {
			port.Close()
			return nil, nil, err
		}
		return stream, func() {
			logger.WithField("lines", stream.Sent()).Info("stream closed")
			port.Close()
		}, nil

	case s.Output != "":
		f, err := os.Create(s.Output)
		if err != nil {
			return nil, nil, fmt.Errorf("output: %w", err)
		}
		w := gcode.NewWriter(f, opts)
		if err := w.Preamble("job: " + plan.Job.Name); err != nil {
			f.Close()
			return nil, nil, err
		}
		return w, func() {
			if err := w.Flush(); err != nil {
				logger.WithError(err).Error("flushing output")
			}
			f.Close()
		}, nil

	default:
		logger.Warn("no device or output given; executing against a simulated machine")
		m := gcode.NewMachine(opts, logger.WithPrefix("machine"))
		return m, func() {
			st := m.Stats()
			logger.WithFields(log.Fields{
				"moves":    st.Moves,
				"deposit":  fmt.Sprintf("%.1fmm", st.Deposit),
				"estimate": st.Duration.Round(time.Second).String(),
			}).Info("simulation finished")
		}, nil
	}
}

func openPort(device string, baud int) (*serial.Port, error) {
	cfg := serial.DefaultConfig()
	cfg.Device = device
	if baud > 0 {
		cfg.BaudRate = baud
	}
	return serial.Open(cfg)
}

func serve(name string, fn func() error, logger *log.Logger) {
	if err := fn(); err != nil {
		logger.WithError(err).WithField("server", name).Error("server stopped")
	}
}

func shutdown(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = fn(ctx)
}

func errorCode(err error) errors.ErrorCode {
	var he *errors.HostError
	if stderrors.As(err, &he) {
		return he.Code
	}
	return errors.ErrRuntime
}
