// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package boot_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/nfive/server/internal/boot"
	"github.com/nfive/server/internal/config"
	"github.com/nfive/server/internal/events"
	"github.com/nfive/server/internal/migration"
	"github.com/nfive/server/internal/plugin"
	"github.com/nfive/server/pkg/sdk"
)

var _ = Describe("Sequencer", func() {
	var f *fixture

	BeforeEach(func() {
		f = newFixture(GinkgoT().TempDir())
		f.write(config.CoreFile, "display:\n  map: NFive\n")
	})

	Describe("booting a plugin with two controllers", func() {
		var initialized <-chan sdk.Event

		BeforeEach(func() {
			f.write("nfive.lock", bankLock)
			f.table.Register(bankName, sdk.NewModule("shared"))
			f.table.Register(bankName, sdk.NewModule("bank", ledgerCtor(), bankCtor()))
			initialized = f.bus.Subscribe(events.ServerInitialized)
		})

		It("registers the core entry first and the plugin after it", func() {
			seq := f.sequencer()
			Expect(seq.Boot(context.Background())).To(Succeed())

			Expect(seq.Registry().Names()).To(Equal([]sdk.Name{sdk.CoreName, bankName}))
			Expect(seq.Registry().Count()).To(Equal(3))
			Expect(seq.State()).To(Equal(boot.StateReady))
		})

		It("raises serverInitialized exactly once", func() {
			seq := f.sequencer()
			Expect(seq.Boot(context.Background())).To(Succeed())

			Eventually(initialized).Should(Receive())
			Consistently(initialized, 100*time.Millisecond).ShouldNot(Receive())
		})

		It("opens includes before mains", func() {
			seq := f.sequencer()
			Expect(seq.Boot(context.Background())).To(Succeed())

			Expect(f.opener.opened).To(HaveLen(2))
			Expect(f.opener.opened[0].Name).To(Equal("shared"))
			Expect(f.opener.opened[1].Name).To(Equal("bank"))
		})
	})

	Describe("a plugin with pending migrations", func() {
		BeforeEach(func() {
			f.write("nfive.lock", `plugins:
  - name: acme/chat
    version: 2.0.0
    server:
      main: [chat]
  - name: acme/bank
    version: 1.0.0
    server:
      main: [bank]
  - name: acme/jobs
    version: 1.0.0
    server:
      main: [jobs]
`)
			f.table.Register(chatName, sdk.NewModule("chat", ledgerCtor()))
			f.table.Register(bankName, sdk.NewModule("bank", accounts(), ledgerCtor()))
			f.table.Register(jobsName, sdk.NewModule("jobs", ledgerCtor()))
		})

		Context("when automatic migrations are disabled", func() {
			It("aborts boot and keeps earlier registrations", func() {
				seq := f.sequencer()
				initialized := f.bus.Subscribe(events.ServerInitialized)

				err := seq.Boot(context.Background())

				Expect(err).To(MatchError(migration.ErrMigrationsPending))
				var pending *migration.PendingError
				Expect(errors.As(err, &pending)).To(BeTrue())
				Expect(pending.Plugin).To(Equal("acme/bank@1.0.0"))

				Expect(seq.State()).To(Equal(boot.StateFailed))
				Expect(seq.Registry().Names()).To(Equal([]sdk.Name{sdk.CoreName, chatName}))
				Expect(f.opener.openedPlugin(jobsName)).To(BeFalse())
				Consistently(initialized, 100*time.Millisecond).ShouldNot(Receive())
			})
		})

		Context("when automatic migrations are enabled", func() {
			BeforeEach(func() {
				f.write(config.CoreFile, "display:\n  map: NFive\nautomatic_migrations: true\n")
			})

			It("applies them and finishes boot", func() {
				seq := f.sequencer()
				Expect(seq.Boot(context.Background())).To(Succeed())

				m, err := f.engine.Open(bankName, accounts())
				Expect(err).NotTo(HaveOccurred())
				Expect(m.Pending()).To(BeEmpty())
				Expect(m.Close()).To(Succeed())

				Expect(seq.Registry().Names()).To(Equal([]sdk.Name{sdk.CoreName, chatName, bankName, jobsName}))
			})
		})
	})

	Describe("a plugin with two mains", func() {
		BeforeEach(func() {
			f.write("nfive.lock", `plugins:
  - name: acme/bank
    version: 1.0.0
    server:
      main: [first, second]
`)
			f.table.Register(bankName, sdk.NewModule("first", ledgerCtor()))
		})

		bankControllers := func(seq *boot.Sequencer) []string {
			insts, _ := seq.Registry().Get(bankName)
			names := make([]string, 0, len(insts))
			for _, inst := range insts {
				names = append(names, inst.Constructor.ControllerName())
			}
			return names
		}

		It("keeps the first main's controllers when the second has pending migrations", func() {
			f.table.Register(bankName, sdk.NewModule("second", accounts(), bankCtor()))
			seq := f.sequencer()

			err := seq.Boot(context.Background())

			Expect(err).To(MatchError(migration.ErrMigrationsPending))
			Expect(seq.State()).To(Equal(boot.StateFailed))
			Expect(bankControllers(seq)).To(Equal([]string{"Ledger"}))
		})

		It("keeps the first main's controllers when the second is missing", func() {
			seq := f.sequencer()

			err := seq.Boot(context.Background())

			Expect(err).To(MatchError(plugin.ErrModuleNotFound))
			Expect(bankControllers(seq)).To(Equal([]string{"Ledger"}))
			Expect(f.opener.opened).To(HaveLen(2))
			Expect(f.opener.opened[1].Name).To(Equal("second"))
		})

		It("constructs each main's controllers in list order", func() {
			f.table.Register(bankName, sdk.NewModule("second", bankCtor()))
			seq := f.sequencer()

			Expect(seq.Boot(context.Background())).To(Succeed())
			Expect(bankControllers(seq)).To(Equal([]string{"Ledger", "Bank"}))
		})
	})
})
