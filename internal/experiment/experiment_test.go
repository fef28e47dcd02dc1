package experiment_test

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/stochsim/internal/analysis"
	"github.com/san-kum/stochsim/internal/config"
	"github.com/san-kum/stochsim/internal/experiment"
	"github.com/san-kum/stochsim/internal/expr"
	"github.com/san-kum/stochsim/internal/metrics"
	"github.com/san-kum/stochsim/internal/model"
	"github.com/san-kum/stochsim/internal/sim"
)

func expectTrajectory(r *sim.Result, x0 sim.State, tMax float64) {
	Expect(r.Times).To(HaveLen(len(r.States)))
	Expect(r.Times[0]).To(BeZero())
	Expect(r.States[0]).To(Equal(x0))
	for i := 1; i < r.Len(); i++ {
		Expect(r.Times[i]).To(BeNumerically(">=", r.Times[i-1]))
	}
	Expect(r.Times[r.Len()-1]).To(BeNumerically("<=", tMax+1e-9))
}

func expectDiscrete(r *sim.Result) {
	for _, s := range r.States {
		for _, v := range s {
			Expect(v).To(BeNumerically(">=", 0))
			Expect(v).To(Equal(math.Floor(v)))
		}
	}
}

var _ = Describe("Experiment", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("food chain SSA", func() {
		It("keeps populations non-negative with strictly increasing event times", func() {
			cfg := experiment.FromConfig(config.GetPreset("food_chain"))
			cfg.Seed = 12345

			rep, err := experiment.New(cfg).Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.Results).To(HaveLen(1))
			Expect(rep.VarNames).To(Equal([]string{"Plants", "Herbivores", "Carnivores"}))

			r := rep.Results[0]
			expectTrajectory(r, sim.State{500, 500, 100}, 5)
			expectDiscrete(r)
			Expect(r.Len()).To(BeNumerically(">", 1))
			for i := 1; i < r.Len(); i++ {
				Expect(r.Times[i]).To(BeNumerically(">", r.Times[i-1]))
			}
			Expect(r.Times[r.Len()-1]).To(BeNumerically("<=", 5))
			Expect(rep.Metrics).To(HaveKey("events_avg"))
			Expect(rep.AvgEvents()).To(Equal(float64(r.Events)))
		})
	})

	Describe("multi-realization", func() {
		It("returns exactly N independent results", func() {
			cfg := experiment.FromConfig(config.GetPreset("birth_death"))
			cfg.TMax = 2
			cfg.Realizations = 50
			cfg.Seed = 7
			cfg.Workers = 4

			rep, err := experiment.New(cfg).Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.Results).To(HaveLen(50))
			Expect(rep.Realizations).To(Equal(50))

			distinct := map[float64]bool{}
			for _, r := range rep.Results {
				expectTrajectory(r, sim.State{100}, 2)
				expectDiscrete(r)
				distinct[r.Times[1]] = true
			}
			Expect(len(distinct)).To(BeNumerically(">", 40))
		})

		It("clamps the realization count", func() {
			cfg := experiment.Config{
				Model: model.Model{
					Name:        "idle",
					Kind:        model.KindSSA,
					Variables:   []model.Variable{{Name: "X", Init: 1}},
					Transitions: []model.Transition{{Rate: "0", Change: []float64{1}}},
				},
				TMax:         1,
				Realizations: 1000,
				Seed:         1,
			}
			rep, err := experiment.New(cfg).Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.Results).To(HaveLen(sim.MaxRealizations))
		})

		It("is reproducible for a fixed seed", func() {
			cfg := experiment.FromConfig(config.GetPreset("birth_death"))
			cfg.TMax = 1
			cfg.Realizations = 5
			cfg.Seed = 99

			a, err := experiment.New(cfg).Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			cfg.Workers = 1
			b, err := experiment.New(cfg).Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			for i := range a.Results {
				Expect(a.Results[i].Times).To(Equal(b.Results[i].Times))
				Expect(a.Results[i].States).To(Equal(b.Results[i].States))
			}
		})

		It("reports progress for every realization", func() {
			cfg := experiment.FromConfig(config.GetPreset("birth_death"))
			cfg.TMax = 0.5
			cfg.Realizations = 8
			cfg.Seed = 3
			cfg.Workers = 1

			var calls []int
			_, err := experiment.New(cfg, experiment.WithProgress(func(done, total int) {
				Expect(total).To(Equal(8))
				calls = append(calls, done)
			})).Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(calls).To(HaveLen(8))
			Expect(calls[7]).To(Equal(8))
		})
	})

	Describe("seasonal CTMP", func() {
		It("oscillates its growth rate with period 2*pi/w", func() {
			cfg := experiment.Config{
				Model: model.Model{
					Name:      "seasonal_birth",
					Kind:      model.KindCTMP,
					Variables: []model.Variable{{Name: "N", Init: 1000}},
					Parameters: []model.Parameter{
						{Name: "b", Value: 1},
						{Name: "d", Value: 1},
						{Name: "A", Value: 0.8},
						{Name: "w", Value: 2 * math.Pi},
					},
					Helpers: []expr.Helper{{Name: "Season", Body: "1 + A * sin(w * t)"}},
					Transitions: []model.Transition{
						{Rate: "b * Season(t) * N", Change: []float64{1}},
						{Rate: "d * N", Change: []float64{-1}},
					},
				},
				TMax:         4,
				Dt:           1e-4,
				Realizations: 1,
				Seed:         2024,
			}

			rep, err := experiment.New(cfg).Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			r := rep.Results[0]
			expectTrajectory(r, sim.State{1000}, 4)
			expectDiscrete(r)

			const step = 0.01
			series := analysis.Resample(r, 0, analysis.Grid(4, step))
			growth := analysis.GrowthRate(series, step, 5)
			period, err := analysis.DominantPeriod(growth, step)
			Expect(err).NotTo(HaveOccurred())
			Expect(period).To(BeNumerically("~", 1.0, 0.15))
		})

		It("warns once about a high per-step event probability", func() {
			cfg := experiment.Config{
				Model: model.Model{
					Name:        "busy",
					Kind:        model.KindCTMP,
					Variables:   []model.Variable{{Name: "X", Init: 0}},
					Transitions: []model.Transition{{Rate: "50", Change: []float64{1}}},
				},
				TMax:         1,
				Dt:           0.01,
				Realizations: 3,
				Seed:         1,
			}
			rep, err := experiment.New(cfg).Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.Warning).To(ContainSubstring("high event probability (0.50)"))
			Expect(rep.Warning).To(ContainSubstring("t=0.00"))
		})
	})

	Describe("SDE", func() {
		It("reduces to explicit Euler without diffusion", func() {
			cfg := experiment.Config{
				Model: model.Model{
					Name:       "decay",
					Kind:       model.KindSDE,
					Components: []model.Component{{Name: "X", Init: 1, Drift: "-X", Diffusion: "0"}},
				},
				TMax:         1,
				Dt:           0.01,
				Realizations: 3,
				Seed:         5,
			}
			rep, err := experiment.New(cfg).Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			for _, r := range rep.Results {
				expectTrajectory(r, sim.State{1}, 1)
				Expect(r.Len()).To(Equal(101))
				_, x := r.Final()
				Expect(x[0]).To(BeNumerically("~", math.Exp(-1), 0.01))
			}
			Expect(rep.Metrics).NotTo(HaveKey("extinct_X"))
			Expect(rep.Check()).To(Succeed())
		})

		It("keeps a diverging trajectory and locates where it blew up", func() {
			cfg := experiment.Config{
				Model: model.Model{
					Name:       "blowup",
					Kind:       model.KindSDE,
					Components: []model.Component{{Name: "X", Init: 10, Drift: "X * X", Diffusion: "0"}},
				},
				TMax:         1,
				Dt:           0.01,
				Realizations: 2,
				Seed:         1,
			}
			rep, err := experiment.New(cfg).Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.Results[0].Len()).To(Equal(101))

			err = rep.Check()
			Expect(err).To(MatchError(ContainSubstring("realization 0")))
			var se sim.SimError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Message).To(Equal("invalid state (NaN/Inf)"))
			Expect(se.Step).To(BeNumerically(">", 0))
			Expect(se.Time).To(BeNumerically("~", float64(se.Step)*0.01, 1e-9))
		})
	})

	Describe("failures", func() {
		It("aborts on a compile error before any realization runs", func() {
			cfg := experiment.FromConfig(config.GetPreset("food_chain"))
			cfg.Model.Transitions[3].Rate = "h_death * (Herbivores"
			cfg.Seed = 1

			var started bool
			rep, err := experiment.New(cfg, experiment.WithProgress(func(int, int) { started = true })).Run(ctx)
			Expect(rep).To(BeNil())
			Expect(started).To(BeFalse())

			var de *model.DefinitionError
			Expect(errors.As(err, &de)).To(BeTrue())
			Expect(de.Index).To(Equal(4))
			Expect(de.Field).To(Equal("rate"))
			Expect(errors.Is(err, expr.ErrSyntax)).To(BeTrue())
		})

		It("rejects a fixed-step model without dt", func() {
			cfg := experiment.FromConfig(config.GetPreset("ornstein_uhlenbeck"))
			cfg.Dt = 0
			_, err := experiment.New(cfg).Run(ctx)
			Expect(err).To(MatchError(sim.ErrInvalidConfig))
		})

		It("aborts the whole request on a non-finite update", func() {
			cfg := experiment.Config{
				Model: model.Model{
					Name:      "bad_update",
					Kind:      model.KindSSA,
					Variables: []model.Variable{{Name: "X", Init: 0}},
					Transitions: []model.Transition{
						{Rate: "1", ChangeExprs: []string{"1 / X"}},
					},
				},
				TMax:         10,
				Realizations: 4,
				Seed:         1,
			}
			rep, err := experiment.New(cfg).Run(ctx)
			Expect(rep).To(BeNil())
			Expect(err).To(MatchError(sim.ErrNonFiniteUpdate))
		})

		It("stops when the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			cfg := experiment.FromConfig(config.GetPreset("birth_death"))
			cfg.Seed = 1
			_, err := experiment.New(cfg).Run(cctx)
			Expect(err).To(MatchError(context.Canceled))
		})
	})

	Describe("collector", func() {
		It("records successful and failed runs", func() {
			c := metrics.NewCollector()
			cfg := experiment.FromConfig(config.GetPreset("birth_death"))
			cfg.TMax = 0.5
			cfg.Seed = 1
			_, err := experiment.New(cfg, experiment.WithCollector(c)).Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			cfg.Model.Variables = nil
			_, err = experiment.New(cfg, experiment.WithCollector(c)).Run(ctx)
			Expect(err).To(MatchError(sim.ErrNoVariables))
		})
	})

	Describe("registry", func() {
		It("starts with the presets and hands out copies", func() {
			reg := experiment.NewRegistry()
			Expect(reg.List()).To(Equal(config.ListPresets()))

			a, err := reg.Get("seasonal")
			Expect(err).NotTo(HaveOccurred())
			a.Model.Parameters[0].Value = -1

			b, err := reg.Get("seasonal")
			Expect(err).NotTo(HaveOccurred())
			Expect(b.Model.Parameters[0].Value).To(Equal(2.0))

			_, err = reg.Get("missing")
			Expect(err).To(HaveOccurred())
		})

		It("registers user models", func() {
			reg := experiment.NewRegistry()
			custom := config.GetPreset("birth_death")
			custom.Model.Name = "custom"
			reg.Register("custom", custom)
			Expect(reg.List()).To(ContainElement("custom"))
		})
	})
})
