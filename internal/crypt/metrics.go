package crypt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	poolAsymmetric = "asymmetric"
	poolSymmetric  = "symmetric"
)

var (
	metricPoolAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crypt_engine_pool_available",
		Help: "Idle cipher engines per pool.",
	}, []string{"pool"})

	metricPoolInUse = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crypt_engine_pool_in_use",
		Help: "Checked out cipher engines per pool.",
	}, []string{"pool"})

	metricEngineConstructed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crypt_engine_constructed_total",
		Help: "Total number of cipher engines constructed.",
	}, []string{"pool"})

	rsaEncryptCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crypt_rsa_encrypt_op",
		Help: "Total number of rsa encryption ops.",
	})

	rsaDecryptCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crypt_rsa_decrypt_op",
		Help: "Total number of rsa decryption ops.",
	})

	aesEncryptCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crypt_aes_encrypt_op",
		Help: "Total number of single layer aes encryptions.",
	})

	aesDecryptCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crypt_aes_decrypt_op",
		Help: "Total number of single layer aes decryptions.",
	})
)
