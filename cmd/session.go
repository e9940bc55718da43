package cmd

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"sketchpad/internal/audio"
	"sketchpad/internal/config"
	"sketchpad/internal/features"
	"sketchpad/internal/log"
	"sketchpad/internal/session"
	"sketchpad/internal/transport"
	"sketchpad/internal/transport/udp"
	"sketchpad/internal/tui"
)

type sessionMode struct {
	headless   bool
	pickDevice bool
}

// runSession is the interactive path: open the audio host, resume the
// training history, then drive the frame loop into the terminal UI and the
// renderer transports until the user quits or ctx is cancelled.
func runSession(ctx context.Context, cfg *config.Config, mode sessionMode) error {
	// One thread for the audio callback, one for the UI and I/O.
	runtime.GOMAXPROCS(2)

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	if mode.pickDevice {
		choice, err := tui.PickDevice()
		if err != nil {
			return err
		}
		if choice == nil {
			return nil
		}
		cfg.Audio.InputDevice = choice.DeviceID
		cfg.Audio.SampleRate = choice.SampleRate
		log.Infof("Session: Using %s at %.0f Hz", choice.Name, choice.SampleRate)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	opts, err := session.OptionsFrom(cfg)
	if err != nil {
		return err
	}
	deps := session.Deps{
		Store:      a.store,
		Engine:     a.engine,
		Classifier: a.classifier,
		Extractor:  features.NewExtractor(cfg.Features),
		Validator:  a.validator,
		Microphone: audio.NewMicrophone(cfg.Audio),
		Speaker:    audio.NewSpeaker(cfg.Audio.FramesPerBuffer),
	}
	if cfg.Recording.SaveClips {
		deps.Clips = audio.ClipWriter{Dir: cfg.Recording.OutputDir}
	}
	sess, err := session.New(opts, deps)
	if err != nil {
		return err
	}
	defer sess.Close()

	outputs, err := openTransports(cfg.Transport, cfg.Debug)
	if err != nil {
		return err
	}
	defer outputs.Close()

	src, err := sess.Resume(ctx)
	if err != nil {
		log.Warnf("Session: %v", err)
	}
	log.Infof("Session: %d training samples (%s)", sess.Samples(), src)

	if cfg.Session.ListenWhenIdle {
		if err := sess.Listen(ctx); err != nil {
			log.Warnf("Session: Live input unavailable: %v", err)
		}
	}

	if mode.headless {
		log.Infof("Session: Running headless, press Ctrl+C to stop")
		err := sess.Run(ctx, outputs)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	return tui.RunSession(ctx, sess, cfg.Shape.Count, func(ctx context.Context, screen *tui.ProgramSink) error {
		return sess.Run(ctx, append(transport.Multi{screen}, outputs...))
	})
}

// openTransports starts the renderer outputs enabled in cfg.
func openTransports(cfg config.TransportConfig, debug bool) (transport.Multi, error) {
	var outputs transport.Multi

	if cfg.WebSocketEnabled {
		ws := transport.NewWebSocketTransport(cfg.WebSocketAddr, cfg.WebSocketInterval)
		ws.ListenAndServe()
		outputs = append(outputs, ws)
	}

	if cfg.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.UDPTargetAddress)
		if err != nil {
			outputs.Close()
			return nil, fmt.Errorf("udp transport: %w", err)
		}
		pub, err := udp.NewUDPPublisher(cfg.UDPSendInterval, sender)
		if err != nil {
			sender.Close()
			outputs.Close()
			return nil, err
		}
		pub.Start()
		outputs = append(outputs, pub)
	}

	if debug {
		outputs = append(outputs, transport.NewLoggingTransport(config.DefaultFPS))
	}
	return outputs, nil
}
