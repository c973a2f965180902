package service

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type cartMetrics struct {
	mutations  metric.Int64Counter
	reconciled metric.Int64Counter
}

func newCartMetrics(log logrus.FieldLogger) *cartMetrics {
	meter := otel.GetMeterProvider().Meter("cartsync.service")
	m := &cartMetrics{}
	var err error
	m.mutations, err = meter.Int64Counter("cart.mutations",
		metric.WithDescription("Cart mutations by operation, mode and outcome"),
		metric.WithUnit("{ops}"),
	)
	if err != nil {
		log.Warnf("failed to register cart.mutations: %v", err)
	}
	m.reconciled, err = meter.Int64Counter("cart.reconcile.items",
		metric.WithDescription("Guest cart lines pushed to the remote cart at login"),
		metric.WithUnit("{items}"),
	)
	if err != nil {
		log.Warnf("failed to register cart.reconcile.items: %v", err)
	}
	return m
}

func (m *cartMetrics) mutation(ctx context.Context, op, mode string, err error) {
	if m == nil || m.mutations == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	))
}

func (m *cartMetrics) reconciledItems(n int) {
	if m == nil || m.reconciled == nil || n == 0 {
		return
	}
	m.reconciled.Add(context.Background(), int64(n))
}
