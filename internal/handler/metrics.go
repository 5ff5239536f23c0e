package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var operationCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "secure_channel_operations_total",
	Help: "Handshake and secure transport operations by result.",
}, []string{"operation", "result"})
