package core

import "github.com/prometheus/client_golang/prometheus"

var interfaceOpsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "inferhost",
		Subsystem: "core",
		Name:      "interface_ops_total",
		Help:      "Interface load/unload calls by outcome",
	},
	[]string{"op", "result"},
)

func init() {
	prometheus.MustRegister(interfaceOpsTotal)
}

func observeOp(op string, err error) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	interfaceOpsTotal.WithLabelValues(op, res).Inc()
}
