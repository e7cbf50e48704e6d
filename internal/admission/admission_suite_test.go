package admission_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/partycluster/fleetcontroller/internal/admission"
	"github.com/partycluster/fleetcontroller/internal/clusterapi"
	"github.com/partycluster/fleetcontroller/internal/config"
	"github.com/partycluster/fleetcontroller/internal/ferrors"
	"github.com/partycluster/fleetcontroller/internal/store"
)

func TestAdmission(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Admission")
}

func seedOne(ctx context.Context, st store.Store, rec clusterapi.ClusterRecord) {
	dict, err := st.GetOrCreate(ctx, store.DictionaryName)
	Expect(err).NotTo(HaveOccurred())
	tx, err := st.BeginTransaction(ctx)
	Expect(err).NotTo(HaveOccurred())
	Expect(dict.Add(ctx, tx, rec.ID, rec)).To(Succeed())
	Expect(tx.Commit(ctx)).To(Succeed())
}

var _ = Describe("Join", func() {
	var (
		ctx context.Context
		st  store.Store
		cfg config.Config
		now time.Time
		clk *clocktesting.FakeClock
		h   *admission.Handler
	)

	BeforeEach(func() {
		ctx = context.Background()
		st = store.NewMemoryStore()
		cfg = config.Default()
		now = time.Now()
		clk = clocktesting.NewFakeClock(now)
		h = admission.New(st, cfg, clk)
	})

	It("admits a user onto the first free port of a Ready cluster", func() {
		seedOne(ctx, st, clusterapi.ClusterRecord{
			ID:        "c1",
			Status:    clusterapi.StatusReady,
			Ports:     []int{80, 8081, 405, 520},
			CreatedOn: now,
		})

		user, err := h.Join(ctx, "alice", "c1")
		Expect(err).NotTo(HaveOccurred())
		Expect(user.Name).To(Equal("alice"))
		Expect(user.Port).To(Equal(80))

		dict, _ := st.GetOrCreate(ctx, store.DictionaryName)
		fleet, _ := dict.Enumerate(ctx)
		Expect(fleet).To(HaveLen(1))
		Expect(fleet[0].Users).To(ConsistOf(user))
	})

	It("assigns the next free port once the first is taken", func() {
		seedOne(ctx, st, clusterapi.ClusterRecord{
			ID:        "c1",
			Status:    clusterapi.StatusReady,
			Ports:     []int{80, 8081, 405, 520},
			Users:     []clusterapi.User{{Name: "alice", Port: 80}},
			CreatedOn: now,
		})

		user, err := h.Join(ctx, "bob", "c1")
		Expect(err).NotTo(HaveOccurred())
		Expect(user.Port).To(Equal(8081))
	})

	It("rejects a join within the 5-minute guard of MaxClusterUptime as NotJoinable", func() {
		seedOne(ctx, st, clusterapi.ClusterRecord{
			ID:        "c1",
			Status:    clusterapi.StatusReady,
			Ports:     []int{80},
			CreatedOn: now.Add(-(cfg.MaxClusterUptime - 4*time.Minute)),
		})

		_, err := h.Join(ctx, "alice", "c1")
		Expect(ferrors.Is(err, ferrors.NotJoinable)).To(BeTrue())
	})

	It("admits a join just outside the 5-minute guard", func() {
		seedOne(ctx, st, clusterapi.ClusterRecord{
			ID:        "c1",
			Status:    clusterapi.StatusReady,
			Ports:     []int{80},
			CreatedOn: now.Add(-(cfg.MaxClusterUptime - 6*time.Minute)),
		})

		_, err := h.Join(ctx, "alice", "c1")
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects an unknown cluster id as NotFound", func() {
		_, err := h.Join(ctx, "alice", "does-not-exist")
		Expect(ferrors.Is(err, ferrors.NotFound)).To(BeTrue())
	})

	It("rejects a non-Ready cluster as NotJoinable", func() {
		seedOne(ctx, st, clusterapi.ClusterRecord{ID: "c1", Status: clusterapi.StatusCreating, CreatedOn: now})

		_, err := h.Join(ctx, "alice", "c1")
		Expect(ferrors.Is(err, ferrors.NotJoinable)).To(BeTrue())
	})

	It("rejects a join with no free ports as NoCapacity", func() {
		seedOne(ctx, st, clusterapi.ClusterRecord{
			ID:        "c1",
			Status:    clusterapi.StatusReady,
			Ports:     []int{80},
			Users:     []clusterapi.User{{Name: "alice", Port: 80}},
			CreatedOn: now,
		})

		_, err := h.Join(ctx, "bob", "c1")
		Expect(ferrors.Is(err, ferrors.NoCapacity)).To(BeTrue())
	})

	It("rejects blank usernames and cluster ids as InvalidArgument", func() {
		_, err := h.Join(ctx, "  ", "c1")
		Expect(ferrors.Is(err, ferrors.InvalidArgument)).To(BeTrue())

		_, err = h.Join(ctx, "alice", "")
		Expect(ferrors.Is(err, ferrors.InvalidArgument)).To(BeTrue())
	})
})
