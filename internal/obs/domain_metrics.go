package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SplitRequestsTotal counts bill split allocations by outcome.
	SplitRequestsTotal = newSplitRequests("")
	// CartMutationsTotal counts cart mutations by operation.
	CartMutationsTotal = newCartMutations("")
	// CheckoutTotal counts checkout attempts by outcome.
	CheckoutTotal = newCheckout("")
	// PaymentCallsTotal counts payment collaborator calls by kind and outcome.
	PaymentCallsTotal = newPaymentCalls("")
	// CatalogLookupsTotal counts catalog resolutions by cache outcome.
	CatalogLookupsTotal = newCatalogLookups("")
)

func newSplitRequests(namespace string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "split_requests_total",
		Help:      "Count of bill split allocation outcomes.",
	}, []string{"result"})
}

func newCartMutations(namespace string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cart_mutations_total",
		Help:      "Count of cart mutations by operation.",
	}, []string{"op"})
}

func newCheckout(namespace string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_total",
		Help:      "Count of checkout outcomes.",
	}, []string{"result"})
}

func newPaymentCalls(namespace string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_calls_total",
		Help:      "Count of payment collaborator calls by kind and outcome.",
	}, []string{"kind", "result"})
}

func newCatalogLookups(namespace string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "catalog_lookups_total",
		Help:      "Count of catalog product resolutions by cache outcome.",
	}, []string{"result"})
}

// MustRegisterDomainMetrics replaces the package collectors with namespaced ones and registers
// them. Until it runs, the collectors are unregistered so packages and tests can use them freely.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SplitRequestsTotal = newSplitRequests(namespace)
		CartMutationsTotal = newCartMutations(namespace)
		CheckoutTotal = newCheckout(namespace)
		PaymentCallsTotal = newPaymentCalls(namespace)
		CatalogLookupsTotal = newCatalogLookups(namespace)

		for _, target := range []**prometheus.CounterVec{
			&SplitRequestsTotal, &CartMutationsTotal, &CheckoutTotal, &PaymentCallsTotal, &CatalogLookupsTotal,
		} {
			target := target
			mustRegisterCollector(reg, *target, func(existing prometheus.Collector) {
				if v, ok := existing.(*prometheus.CounterVec); ok {
					*target = v
				}
			})
		}
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
