package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/realm-server/internal/realm"
)

// tickSampleEvery — каждый какой тик оборачивается спаном.
// Спан на каждый тик при 20-50 Гц утопил бы коллектор.
const tickSampleEvery = 64

// InstrumentRealm вешает otel-спаны на фазу симуляции мира.
// Регистрировать до запуска цикла тика.
func InstrumentRealm(r *realm.Realm) {
	tracer := otel.Tracer("realm")
	attrRealm := attribute.String("realm.id", r.ID())

	var span trace.Span
	r.Hooks().OnPreSim(func(tick uint64, dt float64) {
		if tick%tickSampleEvery != 0 {
			return
		}
		_, span = tracer.Start(context.Background(), "realm.tick",
			trace.WithAttributes(attrRealm, attribute.Int64("realm.tick", int64(tick))))
	})
	r.Hooks().OnPostSim(func(tick uint64, dt float64) {
		if span != nil {
			span.End()
			span = nil
		}
	})
}
