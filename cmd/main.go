package main

import (
	"flag"
	"os"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	_ "k8s.io/client-go/plugin/pkg/client/auth"
	"k8s.io/client-go/tools/events"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	stablev1alpha1 "github.com/stevenplatt/k8s-controller/api/v1alpha1"
	"github.com/stevenplatt/k8s-controller/internal/cluster"
	"github.com/stevenplatt/k8s-controller/internal/controller"
	"github.com/stevenplatt/k8s-controller/internal/dashboard"
	"github.com/stevenplatt/k8s-controller/internal/drain"
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

// operatorPodLabels identifies the controller's own pod so the drain
// executor never evicts it.
var operatorPodLabels = map[string]string{"app": "node-refresh-operator"}

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(stablev1alpha1.AddToScheme(scheme))
}

func main() {
	var metricsAddr string
	var probeAddr string
	var dashboardAddr string
	var enableLeaderElection bool
	var hostNodeName string
	var operatorNamespace string
	var requeueInterval time.Duration
	var maxConcurrentReconciles int

	flag.StringVar(&metricsAddr, "metrics-bind-address", ":8080", "The address the metric endpoint binds to.")
	flag.StringVar(&probeAddr, "health-probe-bind-address", ":8081", "The address the probe endpoint binds to.")
	flag.StringVar(&dashboardAddr, "dashboard-bind-address", ":8082", "The address the dashboard binds to. Set to 0 to disable.")
	flag.BoolVar(&enableLeaderElection, "leader-elect", false,
		"Enable leader election for controller manager. "+
			"Enabling this will ensure there is only one active controller manager.")
	flag.StringVar(&hostNodeName, "host-node-name", os.Getenv("NODE_NAME"),
		"Name of the node the controller runs on, excluded from refresh cycles. "+
			"Defaults to the NODE_NAME environment variable.")
	flag.StringVar(&operatorNamespace, "operator-namespace", envOrDefault("OPERATOR_NAMESPACE", "default"),
		"Namespace the controller pod runs in, excluded from eviction during drains.")
	flag.DurationVar(&requeueInterval, "requeue-interval", 5*time.Minute,
		"How often an idle policy re-checks whether a refresh cycle is due.")
	flag.IntVar(&maxConcurrentReconciles, "max-concurrent-reconciles", 4,
		"Maximum number of policies reconciled concurrently. "+
			"A drain in progress on one policy does not delay the others.")

	opts := zap.Options{Development: true}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsserver.Options{BindAddress: metricsAddr},
		HealthProbeBindAddress: probeAddr,
		LeaderElection:         enableLeaderElection,
		LeaderElectionID:       "noderefresh.stable.example.com",
	})
	if err != nil {
		setupLog.Error(err, "unable to start manager")
		os.Exit(1)
	}

	ctx := ctrl.SetupSignalHandler()

	clientset, err := kubernetes.NewForConfig(mgr.GetConfig())
	if err != nil {
		setupLog.Error(err, "unable to create clientset for event recorder")
		os.Exit(1)
	}
	eventBroadcaster := events.NewBroadcaster(&events.EventSinkImpl{Interface: clientset.EventsV1()})
	eventBroadcaster.StartRecordingToSink(ctx.Done())
	defer eventBroadcaster.Shutdown()

	gateway := cluster.NewGateway(mgr.GetClient())

	if err = (&controller.NodeRefreshReconciler{
		Client:   mgr.GetClient(),
		Scheme:   mgr.GetScheme(),
		Recorder: eventBroadcaster.NewRecorder(mgr.GetScheme(), "node-refresh"),
		Gateway:  gateway,
		Drainer: &drain.Executor{
			Gateway:           gateway,
			OperatorNamespace: operatorNamespace,
			OperatorPodLabels: operatorPodLabels,
		},
		HostNodeName:            hostNodeName,
		RequeueInterval:         requeueInterval,
		MaxConcurrentReconciles: maxConcurrentReconciles,
	}).SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "NodeRefresh")
		os.Exit(1)
	}

	if dashboardAddr != "0" {
		if err := mgr.Add(dashboard.NewServer(dashboardAddr, mgr.GetClient())); err != nil {
			setupLog.Error(err, "unable to set up dashboard")
			os.Exit(1)
		}
	} else {
		setupLog.Info("dashboard disabled")
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		os.Exit(1)
	}

	setupLog.Info("starting manager")
	if err := mgr.Start(ctx); err != nil {
		setupLog.Error(err, "problem running manager")
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
