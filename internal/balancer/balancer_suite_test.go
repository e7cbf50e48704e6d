package balancer_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/partycluster/fleetcontroller/internal/balancer"
	"github.com/partycluster/fleetcontroller/internal/capacity"
	"github.com/partycluster/fleetcontroller/internal/clusterapi"
	"github.com/partycluster/fleetcontroller/internal/config"
	"github.com/partycluster/fleetcontroller/internal/store"
)

func TestBalancer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Balancer")
}

func seed(ctx context.Context, st store.Store, records ...clusterapi.ClusterRecord) {
	dict, err := st.GetOrCreate(ctx, store.DictionaryName)
	Expect(err).NotTo(HaveOccurred())
	tx, err := st.BeginTransaction(ctx)
	Expect(err).NotTo(HaveOccurred())
	for _, r := range records {
		Expect(dict.Add(ctx, tx, r.ID, r)).To(Succeed())
	}
	Expect(tx.Commit(ctx)).To(Succeed())
}

func countByStatus(ctx context.Context, st store.Store, status clusterapi.Status) int {
	dict, err := st.GetOrCreate(ctx, store.DictionaryName)
	Expect(err).NotTo(HaveOccurred())
	fleet, err := dict.Enumerate(ctx)
	Expect(err).NotTo(HaveOccurred())
	n := 0
	for _, r := range fleet {
		if r.Status == status {
			n++
		}
	}
	return n
}

func ready(id string, users int) clusterapi.ClusterRecord {
	rec := clusterapi.ClusterRecord{ID: id, Status: clusterapi.StatusReady, CreatedOn: clusterapi.MaxTime}
	for i := 0; i < users; i++ {
		rec.Users = append(rec.Users, clusterapi.User{Name: "u", Port: i})
	}
	return rec
}

func deleting(id string) clusterapi.ClusterRecord {
	return clusterapi.ClusterRecord{ID: id, Status: clusterapi.StatusDeleting}
}

var _ = Describe("Balance", func() {
	var (
		ctx context.Context
		st  store.Store
		cfg config.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		st = store.NewMemoryStore()
		cfg = config.Default()
	})

	It("performs the initial fill: an empty store reaches exactly MinimumClusterCount New records", func() {
		target := capacity.ComputeTarget(nil, cfg)
		Expect(balancer.Balance(ctx, st, target, cfg)).To(Succeed())

		dict, _ := st.GetOrCreate(ctx, store.DictionaryName)
		fleet, _ := dict.Enumerate(ctx)
		Expect(fleet).To(HaveLen(cfg.MinimumClusterCount))
		for _, r := range fleet {
			Expect(r.Status).To(Equal(clusterapi.StatusNew))
		}
	})

	It("clamps an upscale request to MaximumClusterCount, counting only active clusters", func() {
		var records []clusterapi.ClusterRecord
		for i := 0; i < 10; i++ {
			records = append(records, ready(idf("ready", i), 0))
		}
		for i := 0; i < 20; i++ {
			records = append(records, deleting(idf("deleting", i)))
		}
		seed(ctx, st, records...)

		Expect(balancer.Balance(ctx, st, 101, cfg)).To(Succeed())

		dict, _ := st.GetOrCreate(ctx, store.DictionaryName)
		fleet, _ := dict.Enumerate(ctx)
		Expect(fleet).To(HaveLen(120))
		Expect(countByStatus(ctx, st, clusterapi.StatusNew)).To(Equal(90))
		Expect(countByStatus(ctx, st, clusterapi.StatusReady)).To(Equal(10))
		Expect(countByStatus(ctx, st, clusterapi.StatusDeleting)).To(Equal(20))
	})

	It("never drops the active count below MinimumClusterCount even when the request undershoots it", func() {
		var records []clusterapi.ClusterRecord
		for i := 0; i < 20; i++ {
			records = append(records, ready(idf("ready", i), 0))
		}
		for i := 0; i < 10; i++ {
			records = append(records, deleting(idf("deleting", i)))
		}
		seed(ctx, st, records...)

		// Requesting 5 is below MinimumClusterCount; §4.3 step 1 clamps the
		// target back up to 10 before computing how many to flag, so the
		// number flagged is active(20) - Minimum(10) = 10, not the raw gap
		// to the unclamped request.
		Expect(balancer.Balance(ctx, st, 5, cfg)).To(Succeed())

		Expect(countByStatus(ctx, st, clusterapi.StatusReady)).To(Equal(cfg.MinimumClusterCount))
		Expect(countByStatus(ctx, st, clusterapi.StatusRemove)).To(Equal(10))
		Expect(countByStatus(ctx, st, clusterapi.StatusDeleting)).To(Equal(10))
	})

	It("never flags a non-empty cluster, even when fewer empties exist than requested", func() {
		var records []clusterapi.ClusterRecord
		for i := 0; i < 15; i++ {
			records = append(records, ready(idf("occupied", i), 1))
		}
		for i := 0; i < 10; i++ {
			records = append(records, ready(idf("empty", i), 0))
		}
		seed(ctx, st, records...)

		Expect(balancer.Balance(ctx, st, 14, cfg)).To(Succeed())

		dict, _ := st.GetOrCreate(ctx, store.DictionaryName)
		fleet, _ := dict.Enumerate(ctx)
		readyCount, removeCount := 0, 0
		for _, r := range fleet {
			switch r.Status {
			case clusterapi.StatusReady:
				readyCount++
				Expect(r.Users).NotTo(BeEmpty(), "every cluster left Ready here was seeded with a user")
			case clusterapi.StatusRemove:
				removeCount++
			}
		}
		Expect(readyCount).To(Equal(15))
		Expect(removeCount).To(Equal(10))
	})
})

func idf(prefix string, i int) string {
	return prefix + "-" + itoa(i)
}

func itoa(i int) string {
	digits := "0123456789"
	if i == 0 {
		return "0"
	}
	var b []byte
	for i > 0 {
		b = append([]byte{digits[i%10]}, b...)
		i /= 10
	}
	return string(b)
}
