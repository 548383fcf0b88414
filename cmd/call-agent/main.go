// call-agent is a headless call participant: it polls for incoming calls on
// its user's confirmed appointments and can answer them automatically,
// publishing file-backed audio and video. It stands in for a telehealth
// client during testing and doubles as an always-on answering endpoint.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/mednexus/telehealth-calls/internal/apiclient"
	"github.com/mednexus/telehealth-calls/internal/call"
	"github.com/mednexus/telehealth-calls/internal/media"
)

type agentConfig struct {
	baseURL        string
	token          string
	role           call.Role
	autoAccept     bool
	cameraFile     string
	microphoneFile string

	pollInterval      time.Duration
	refreshInterval   time.Duration
	connectTimeout    time.Duration
	deviceEnableDelay time.Duration
	errorCloseDelay   time.Duration
}

func loadAgentConfig() agentConfig {
	_ = godotenv.Load()

	cfg := agentConfig{
		baseURL:        getEnv("BACKEND_BASE_URL", "http://127.0.0.1:8080"),
		token:          os.Getenv("AGENT_TOKEN"),
		cameraFile:     os.Getenv("CAMERA_FILE"),
		microphoneFile: os.Getenv("MICROPHONE_FILE"),

		pollInterval:      getDuration("POLL_INTERVAL", 5*time.Second),
		refreshInterval:   getDuration("APPOINTMENT_REFRESH_INTERVAL", time.Minute),
		connectTimeout:    getDuration("CONNECT_TIMEOUT", 30*time.Second),
		deviceEnableDelay: getDuration("DEVICE_ENABLE_DELAY", time.Second),
		errorCloseDelay:   getDuration("ERROR_CLOSE_DELAY", 2*time.Second),
	}

	cfg.role = call.RolePatient
	if getEnv("AGENT_ROLE", "patient") == "doctor" {
		cfg.role = call.RoleDoctor
	}
	if v, err := strconv.ParseBool(getEnv("AGENT_AUTO_ACCEPT", "true")); err == nil {
		cfg.autoAccept = v
	}

	return cfg
}

// logReporter surfaces call failures on the agent log, where an interactive
// client would show an alert.
type logReporter struct{}

func (logReporter) ConnectFailed(appointmentID uuid.UUID, err error) {
	log.Printf("could not connect call for appointment %s: %v", appointmentID, err)
}

func (logReporter) DeviceUnavailable(appointmentID uuid.UUID, device string, err error) {
	log.Printf("%s unavailable for appointment %s: %v", device, appointmentID, err)
}

// acceptNotifier answers an incoming call by moving the controller into it.
type acceptNotifier struct {
	arbiter    *call.Arbiter
	controller *call.Controller
	autoAccept bool
	timeout    time.Duration
}

func (n *acceptNotifier) IncomingCall(notification call.Notification) {
	log.Printf("incoming call from %s (%s) for appointment %s",
		notification.CallerName, notification.CallerRole, notification.AppointmentID)

	if !n.autoAccept {
		return
	}

	go func() {
		accepted, ok := n.arbiter.Accept()
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.controller.Accept(ctx, accepted.AppointmentID); err != nil {
			log.Printf("accept call for appointment %s: %v", accepted.AppointmentID, err)
		}
	}()
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("call-agent starting up")

	cfg := loadAgentConfig()
	if cfg.token == "" {
		log.Fatal("AGENT_TOKEN is required")
	}
	log.Printf("running as role=%s auto_accept=%t poll_interval=%s", cfg.role, cfg.autoAccept, cfg.pollInterval)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := apiclient.New(cfg.baseURL, cfg.token, cfg.role == call.RoleDoctor)

	controller := call.NewController(client, media.NewTransportFactory(cfg.cameraFile, cfg.microphoneFile), logReporter{}, call.ControllerConfig{
		ConnectTimeout:    cfg.connectTimeout,
		DeviceEnableDelay: cfg.deviceEnableDelay,
		ErrorCloseDelay:   cfg.errorCloseDelay,
	})
	controller.SetCompletionHandler(func() {
		log.Println("call ended")
	})
	controller.OnStateChange(func(st call.ViewState) {
		log.Printf("call state phase=%s appointment=%s muted=%t camera_off=%t participants=%d",
			st.Phase, st.AppointmentID, st.Muted, st.CameraOff, len(st.Participants))
	})

	poller := call.NewPoller(client, cfg.pollInterval, cfg.role == call.RoleDoctor)
	notifier := &acceptNotifier{controller: controller, autoAccept: cfg.autoAccept, timeout: cfg.connectTimeout}
	arbiter := call.NewArbiter(poller, cfg.role, controller, notifier)
	notifier.arbiter = arbiter

	refreshAppointments(rootCtx, client, arbiter)
	go func() {
		ticker := time.NewTicker(cfg.refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				refreshAppointments(rootCtx, client, arbiter)
			}
		}
	}()

	poller.Run(rootCtx, arbiter.Tick)

	log.Println("shutting down call-agent")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	controller.Close(shutdownCtx)
}

func refreshAppointments(ctx context.Context, client *apiclient.Client, arbiter *call.Arbiter) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	appointments, err := client.ListAppointments(reqCtx, "confirmed")
	if err != nil {
		log.Printf("refresh appointments: %v", err)
		return
	}
	arbiter.SetAppointments(appointments)
	log.Printf("watching %d confirmed appointments", len(appointments))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
