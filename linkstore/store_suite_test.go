package linkstore_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/latticerun/hostcore/cluster"
	"github.com/latticerun/hostcore/linkstore"
)

func TestLinkStoreSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "LinkStore Suite")
}

var _ = Describe("Store", func() {
	var (
		store *linkstore.Store
		ctx   context.Context
	)

	BeforeEach(func() {
		bucket, err := linkstore.NewBuntBucket(":memory:")
		Expect(err).NotTo(HaveOccurred())
		store = linkstore.NewStore(bucket, cluster.NewLinkCache(), cluster.NewConfigCache())
		ctx = context.Background()
	})

	It("returns no links for a source with none defined", func() {
		Expect(store.GetLinksFor("Vsrc")).To(BeEmpty())
	})

	It("makes a link visible to GetLinksFor immediately after PutLink", func() {
		def := &cluster.LinkDefinition{
			SourceID: "Vsrc", TargetID: "Vtarget", WitNamespace: "wasmcloud",
			WitPackage: "messaging", LinkName: "default", WitInterfaces: []string{"handler"},
		}
		Expect(store.PutLink(ctx, def)).To(Succeed())

		links := store.GetLinksFor("Vsrc")
		Expect(links).To(HaveLen(1))
		Expect(links[0].TargetID).To(Equal("Vtarget"))
	})

	It("rejects a link definition missing required fields", func() {
		Expect(store.PutLink(ctx, &cluster.LinkDefinition{})).To(HaveOccurred())
	})

	It("allows redefining an existing link", func() {
		def := &cluster.LinkDefinition{
			SourceID: "Vsrc", TargetID: "Vtarget", WitNamespace: "wasmcloud",
			WitPackage: "messaging", LinkName: "default", WitInterfaces: []string{"handler"},
		}
		Expect(store.PutLink(ctx, def)).To(Succeed())

		def.TargetID = "VotherTarget"
		Expect(store.PutLink(ctx, def)).To(Succeed())

		links := store.GetLinksFor("Vsrc")
		Expect(links).To(HaveLen(1))
		Expect(links[0].TargetID).To(Equal("VotherTarget"))
	})

	It("bumps the config version on every PutConfig", func() {
		first, err := store.PutConfig(ctx, "shared", map[string][]byte{"k": []byte("v1")})
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Version).To(Equal(int64(1)))

		second, err := store.PutConfig(ctx, "shared", map[string][]byte{"k": []byte("v2")})
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Version).To(Equal(int64(2)))
	})
})
