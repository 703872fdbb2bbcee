package ingredient_test

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/teamalpha/aichef/internal/ingredient"
)

var _ = Describe("BoltStore", func() {
	var (
		dbPath string
		store  *ingredient.BoltStore
	)

	BeforeEach(func() {
		dbPath = filepath.Join(GinkgoT().TempDir(), "test.db")
		var err error
		store, err = ingredient.NewBoltStore(dbPath, "")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if store != nil {
			store.Close()
		}
	})

	Describe("SaveEntry", func() {
		It("should save the entry", func() {
			Expect(store.SaveEntry(&ingredient.Entry{ingredient.Label: "tomato", Origin: ingredient.OriginCamera, AddedAt: time.Now()})).To(Succeed())
			entries, err := store.LoadEntries()
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Label).To(Equal(ingredient.Label("tomato")))
		})

		It("replaces an entry with the same label", func() {
			Expect(store.SaveEntry(&ingredient.Entry{ingredient.Label: "tomato"})).To(Succeed())
			Expect(store.SaveEntry(&ingredient.Entry{ingredient.Label: "tomato", Checked: true})).To(Succeed())
			entries, err := store.LoadEntries()
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Checked).To(BeTrue())
		})
	})

	Describe("LoadEntries", func() {
		When("no entries exist", func() {
			It("should return an empty list", func() {
				entries, err := store.LoadEntries()
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(BeEmpty())
			})
		})

		When("entries exist", func() {
			BeforeEach(func() {
				Expect(store.SaveEntry(&ingredient.Entry{ingredient.Label: "zucchini", Sequence: 0})).To(Succeed())
				Expect(store.SaveEntry(&ingredient.Entry{ingredient.Label: "apple", Sequence: 2})).To(Succeed())
				Expect(store.SaveEntry(&ingredient.Entry{ingredient.Label: "milk", Sequence: 1})).To(Succeed())
			})

			It("returns them in insertion order", func() {
				entries, err := store.LoadEntries()
				Expect(err).NotTo(HaveOccurred())
				labels := make([]ingredient.Label, 0, len(entries))
				for _, e := range entries {
					labels = append(labels, e.Label)
				}
				Expect(labels).To(Equal([]ingredient.Label{"zucchini", "milk", "apple"}))
			})
		})
	})

	Describe("DeleteEntry", func() {
		It("removes the entry", func() {
			Expect(store.SaveEntry(&ingredient.Entry{ingredient.Label: "tomato"})).To(Succeed())
			Expect(store.DeleteEntry("tomato")).To(Succeed())
			entries, err := store.LoadEntries()
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})

		It("does not fail for a missing entry", func() {
			Expect(store.DeleteEntry("nonexistent")).To(Succeed())
		})
	})

	Describe("named lists", func() {
		It("keeps lists apart in one file", func() {
			Expect(store.SaveEntry(&ingredient.Entry{ingredient.Label: "tomato"})).To(Succeed())
			Expect(store.Close()).To(Succeed())

			recipes, err := ingredient.NewBoltStore(dbPath, "recipes")
			Expect(err).NotTo(HaveOccurred())
			entries, err := recipes.LoadEntries()
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
			Expect(recipes.Close()).To(Succeed())

			store, err = ingredient.NewBoltStore(dbPath, "shopping")
			Expect(err).NotTo(HaveOccurred())
			entries, err = store.LoadEntries()
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
		})
	})

	Describe("ledger round trip", func() {
		It("restores the ledger in insertion order", func() {
			ledger, err := ingredient.NewLedgerFromStore(store, nil)
			Expect(err).NotTo(HaveOccurred())
			ledger.Add("onion", ingredient.OriginCamera)
			ledger.Add("carrot", ingredient.OriginSearch)
			ledger.Add("apple", ingredient.OriginCamera)
			ledger.SetChecked("carrot", true)

			restored, err := ingredient.NewLedgerFromStore(store, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(restored.Labels()).To(Equal([]ingredient.Label{"onion", "carrot", "apple"}))
			Expect(restored.Snapshot()[1].Checked).To(BeTrue())
		})
	})
})
