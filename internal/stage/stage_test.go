package stage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/multierr"

	"github.com/san-kum/stagesim/internal/model"
	"github.com/san-kum/stagesim/internal/settings"
	"github.com/san-kum/stagesim/internal/stage"
)

func problemData(start, end float64, parallelType string) *settings.Parameters {
	return settings.New(map[string]any{
		"problem_data": map[string]any{
			"echo_level":    0,
			"parallel_type": parallelType,
			"start_time":    start,
			"end_time":      end,
		},
	})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var _ = Describe("Stage", func() {
	var (
		rec     *recorder
		solver  *fakeSolver
		factory *fakeFactory
		bc      *fakeProcess
		monitor *fakeProcess
		out     *fakeOutput
	)

	BeforeEach(func() {
		rec = &recorder{}
		solver = &fakeSolver{rec: rec, dt: 0.25}
		bc = &fakeProcess{name: "bc", rec: rec}
		monitor = &fakeProcess{name: "monitor", rec: rec}
		out = &fakeOutput{fakeProcess: fakeProcess{name: "out", rec: rec}, due: true}
		factory = &fakeFactory{
			rec:     rec,
			solver:  solver,
			procs:   []stage.Process{bc, monitor},
			outputs: []stage.OutputProcess{out},
		}
	})

	newStage := func(params *settings.Parameters, f stage.Factory, opts ...stage.Option) *stage.Stage {
		opts = append([]stage.Option{stage.WithLogger(quietLogger())}, opts...)
		s, err := stage.New(model.New(), params, f, opts...)
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	Describe("construction", func() {
		It("rejects a missing model before touching any collaborator", func() {
			_, err := stage.New(nil, problemData(0, 1, "Serial"), factory)
			Expect(err).To(MatchError(stage.ErrConfigurationType))
			Expect(factory.solverBuilds).To(Equal(0))
			Expect(rec.calls).To(BeEmpty())
		})

		It("rejects missing settings before touching any collaborator", func() {
			_, err := stage.New(model.New(), nil, factory)
			Expect(err).To(MatchError(stage.ErrConfigurationType))
			Expect(factory.solverBuilds).To(Equal(0))
		})

		It("rejects a missing factory", func() {
			_, err := stage.New(model.New(), problemData(0, 1, "Serial"), nil)
			Expect(err).To(MatchError(stage.ErrConfigurationType))
		})

		It("surfaces missing required settings from the settings tree", func() {
			params := settings.New(map[string]any{
				"problem_data": map[string]any{"parallel_type": "Serial"},
			})
			_, err := stage.New(model.New(), params, factory)
			Expect(err).To(MatchError(settings.ErrMissingKey))
			Expect(err.Error()).To(ContainSubstring("problem_data.echo_level"))
		})

		It("rejects an unknown parallel type", func() {
			_, err := stage.New(model.New(), problemData(0, 1, "Threads"), factory)
			Expect(err).To(MatchError(stage.ErrUnknownParallelType))
		})

		It("creates the solver eagerly and registers its variables", func() {
			newStage(problemData(0, 1, "Serial"), factory)
			Expect(factory.solverBuilds).To(Equal(1))
			Expect(rec.calls).To(Equal([]string{"solver.AddVariables"}))
			Expect(factory.processBuilds).To(Equal(0))
		})

		It("fails with a contract violation when the solver factory is not provided", func() {
			_, err := stage.New(model.New(), problemData(0, 1, "Serial"), stage.UnimplementedFactory{})
			Expect(err).To(MatchError(stage.ErrNotImplemented))
			Expect(err.Error()).To(ContainSubstring("solver"))
		})

		It("names the missing process factory", func() {
			s := newStage(problemData(0, 1, "Serial"), solverOnlyFactory{solver: solver})
			err := s.Run(context.Background())
			Expect(err).To(MatchError(stage.ErrNotImplemented))
			Expect(err.Error()).To(ContainSubstring("processes"))
			Expect(s.Name()).To(Equal("AnalysisStage"))
		})
	})

	Describe("Run", func() {
		It("runs initialize, the solution loop and finalize in order", func() {
			s := newStage(problemData(0, 0.25, "Serial"), factory)
			Expect(s.Run(context.Background())).To(Succeed())

			Expect(rec.calls).To(Equal([]string{
				"solver.AddVariables",
				"solver.ReadModelPart",
				"solver.PrepareModelPart",
				"solver.AddDofs",
				"bc.ExecuteInitialize",
				"monitor.ExecuteInitialize",
				"out.ExecuteInitialize",
				"solver.Initialize",
				"bc.ExecuteBeforeSolutionLoop",
				"monitor.ExecuteBeforeSolutionLoop",
				"out.ExecuteBeforeSolutionLoop",
				"solver.AdvanceInTime",
				"bc.ExecuteInitializeSolutionStep",
				"monitor.ExecuteInitializeSolutionStep",
				"out.ExecuteInitializeSolutionStep",
				"solver.InitializeSolutionStep",
				"solver.Predict",
				"solver.SolveSolutionStep",
				"solver.FinalizeSolutionStep",
				"bc.ExecuteFinalizeSolutionStep",
				"monitor.ExecuteFinalizeSolutionStep",
				"out.ExecuteFinalizeSolutionStep",
				"bc.ExecuteBeforeOutputStep",
				"monitor.ExecuteBeforeOutputStep",
				"out.ExecuteBeforeOutputStep",
				"out.PrintOutput",
				"bc.ExecuteAfterOutputStep",
				"monitor.ExecuteAfterOutputStep",
				"out.ExecuteAfterOutputStep",
				"bc.ExecuteFinalize",
				"monitor.ExecuteFinalize",
				"out.ExecuteFinalize",
			}))
		})

		It("calls ExecuteInitialize on every process before any ExecuteBeforeSolutionLoop", func() {
			s := newStage(problemData(0, 1, "Serial"), factory)
			Expect(s.Initialize()).To(Succeed())

			lastInit := rec.indexOf("out.ExecuteInitialize")
			firstBefore := rec.indexOf("bc.ExecuteBeforeSolutionLoop")
			Expect(lastInit).To(BeNumerically("<", rec.indexOf("solver.Initialize")))
			Expect(rec.indexOf("solver.Initialize")).To(BeNumerically("<", firstBefore))
		})

		It("skips the loop when the end time is not after the start time, and still finalizes", func() {
			s := newStage(problemData(2, 1, "Serial"), factory)
			Expect(s.Run(context.Background())).To(Succeed())

			Expect(solver.advances).To(Equal(0))
			Expect(s.Step()).To(Equal(0))
			Expect(rec.count("bc.ExecuteFinalize")).To(Equal(1))
		})

		DescribeTable("iterates until time reaches the end time",
			func(start, end, h float64, iterations int) {
				solver.dt = h
				s := newStage(problemData(start, end, "Serial"), factory)
				Expect(s.Run(context.Background())).To(Succeed())

				Expect(solver.advances).To(Equal(iterations))
				Expect(s.Step()).To(Equal(iterations))
				Expect(s.Time()).To(BeNumerically(">=", end))
			},
			Entry("exact multiple", 0.0, 1.0, 0.25, 4),
			Entry("overshooting last step", 0.0, 1.0, 0.375, 3),
			Entry("non-zero start", 0.5, 1.5, 0.125, 8),
			Entry("single step", 0.0, 0.1, 0.5, 1),
		)

		It("returns collaborator errors unchanged and stops", func() {
			boom := errors.New("linear solve diverged")
			solver.solveErr = boom
			s := newStage(problemData(0, 1, "Serial"), factory)

			err := s.Run(context.Background())
			Expect(err).To(BeIdenticalTo(boom))
			Expect(rec.count("solver.FinalizeSolutionStep")).To(Equal(0))
			Expect(rec.count("bc.ExecuteFinalize")).To(Equal(0))
		})

		It("stops a non-advancing loop when the context is canceled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			solver.dt = 0
			solver.onAdvance = func(n int) {
				if n == 3 {
					cancel()
				}
			}
			s := newStage(problemData(0, 1, "Serial"), factory)

			Expect(s.Run(ctx)).To(MatchError(context.Canceled))
			Expect(solver.advances).To(Equal(3))
		})

		It("calls the optional extension points at their lifecycle positions", func() {
			s := newStage(problemData(0, 0.25, "Serial"), hookedFactory{factory})
			Expect(s.Run(context.Background())).To(Succeed())

			Expect(rec.indexOf("stage.ModifyInitialProperties")).To(BeNumerically(">", rec.indexOf("solver.AddDofs")))
			Expect(rec.indexOf("stage.ModifyInitialGeometry")).To(BeNumerically(">", rec.indexOf("stage.ModifyInitialProperties")))
			Expect(rec.indexOf("stage.ModifyInitialGeometry")).To(BeNumerically("<", rec.indexOf("bc.ExecuteInitialize")))

			change := rec.indexOf("stage.ChangeMaterialProperties")
			Expect(change).To(BeNumerically(">", rec.indexOf("out.ExecuteInitializeSolutionStep")))
			Expect(change).To(BeNumerically("<", rec.indexOf("solver.InitializeSolutionStep")))
		})
	})

	Describe("FinalizeSolutionStep", func() {
		It("finalizes the solver before the processes", func() {
			s := newStage(problemData(0, 1, "Serial"), factory)
			Expect(s.FinalizeSolutionStep()).To(Succeed())
			Expect(rec.calls[1:]).To(Equal([]string{
				"solver.FinalizeSolutionStep",
				"bc.ExecuteFinalizeSolutionStep",
				"monitor.ExecuteFinalizeSolutionStep",
				"out.ExecuteFinalizeSolutionStep",
			}))
		})
	})

	Describe("OutputSolutionStep", func() {
		var quiet *fakeOutput

		BeforeEach(func() {
			quiet = &fakeOutput{fakeProcess: fakeProcess{name: "quiet", rec: rec}}
			factory.outputs = []stage.OutputProcess{out, quiet}
		})

		It("does nothing when no output process is due", func() {
			out.due = false
			s := newStage(problemData(0, 1, "Serial"), factory)
			before := len(rec.calls)

			Expect(s.OutputSolutionStep()).To(Succeed())
			Expect(rec.calls[before:]).To(BeEmpty())
		})

		It("notifies every process but prints only the due ones", func() {
			s := newStage(problemData(0, 1, "Serial"), factory)
			before := len(rec.calls)

			Expect(s.OutputSolutionStep()).To(Succeed())
			Expect(rec.calls[before:]).To(Equal([]string{
				"bc.ExecuteBeforeOutputStep",
				"monitor.ExecuteBeforeOutputStep",
				"out.ExecuteBeforeOutputStep",
				"quiet.ExecuteBeforeOutputStep",
				"out.PrintOutput",
				"bc.ExecuteAfterOutputStep",
				"monitor.ExecuteAfterOutputStep",
				"out.ExecuteAfterOutputStep",
				"quiet.ExecuteAfterOutputStep",
			}))
		})
	})

	Describe("lazy construction", func() {
		It("builds each component once and returns the cached instance", func() {
			s := newStage(problemData(0, 1, "Serial"), factory)

			first, err := s.Solver()
			Expect(err).NotTo(HaveOccurred())
			second, err := s.Solver()
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(BeIdenticalTo(first))

			for i := 0; i < 3; i++ {
				_, err := s.Processes()
				Expect(err).NotTo(HaveOccurred())
				_, err = s.OutputProcesses()
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(factory.solverBuilds).To(Equal(1))
			Expect(factory.processBuilds).To(Equal(1))
			Expect(factory.outputBuilds).To(Equal(1))
		})

		It("appends each output process to the process list exactly once", func() {
			s := newStage(problemData(0, 1, "Serial"), factory)

			outs, err := s.OutputProcesses()
			Expect(err).NotTo(HaveOccurred())
			Expect(outs).To(HaveLen(1))

			procs, err := s.Processes()
			Expect(err).NotTo(HaveOccurred())
			Expect(procs).To(HaveLen(3))
			Expect(procs[0]).To(BeIdenticalTo(bc))
			Expect(procs[1]).To(BeIdenticalTo(monitor))
			Expect(procs[2]).To(BeIdenticalTo(out))

			again, err := s.Processes()
			Expect(err).NotTo(HaveOccurred())
			Expect(again).To(HaveLen(3))
		})

		It("includes the output processes when the process list is accessed first", func() {
			s := newStage(problemData(0, 1, "Serial"), factory)

			procs, err := s.Processes()
			Expect(err).NotTo(HaveOccurred())
			Expect(procs).To(HaveLen(3))
			Expect(procs[2]).To(BeIdenticalTo(out))
		})

		It("rejects a factory that re-enters the accessor it is building", func() {
			factory.createProcesses = func(s *stage.Stage) ([]stage.Process, error) {
				_, err := s.Processes()
				return nil, err
			}
			s := newStage(problemData(0, 1, "Serial"), factory)

			_, err := s.Processes()
			Expect(err).To(MatchError(stage.ErrReentrantConstruction))
			Expect(factory.processBuilds).To(Equal(1))

			_, err = s.Processes()
			Expect(err).To(MatchError(stage.ErrReentrantConstruction))
			Expect(factory.processBuilds).To(Equal(1))
		})
	})

	Describe("printing rank", func() {
		It("logs steps and completion in serial mode", func() {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			s, err := stage.New(model.New(), problemData(0, 0.5, "Serial"), factory, stage.WithLogger(logger))
			Expect(err).NotTo(HaveOccurred())
			Expect(s.IsPrintingRank()).To(BeTrue())

			Expect(s.Run(context.Background())).To(Succeed())
			Expect(buf.String()).To(ContainSubstring("solution step"))
			Expect(buf.String()).To(ContainSubstring("Analysis -END-"))
			Expect(buf.String()).To(ContainSubstring("stage=FakeAnalysis"))
		})

		It("silences every rank except rank 0 in MPI mode", func() {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			s, err := stage.New(model.New(), problemData(0, 0.5, "MPI"), factory,
				stage.WithLogger(logger), stage.WithCommunicator(fakeComm{rank: 1}))
			Expect(err).NotTo(HaveOccurred())
			Expect(s.IsPrintingRank()).To(BeFalse())

			Expect(s.Run(context.Background())).To(Succeed())
			Expect(buf.String()).To(BeEmpty())
		})

		It("lets rank 0 print in MPI mode", func() {
			s := newStage(problemData(0, 1, "MPI"), factory, stage.WithCommunicator(fakeComm{rank: 0}))
			Expect(s.IsPrintingRank()).To(BeTrue())
			Expect(s.Communicator().Size()).To(Equal(2))
		})

		It("falls back to a single unit when MPI has no communicator", func() {
			s := newStage(problemData(0, 1, "MPI"), factory)
			Expect(s.IsPrintingRank()).To(BeTrue())
			Expect(s.Communicator().Size()).To(Equal(1))
		})
	})

	Describe("Check", func() {
		It("reports every failing component", func() {
			solver.checkErr = errors.New("time step must be positive")
			monitor.checkErr = errors.New("tolerance must be positive")
			s := newStage(problemData(0, 1, "Serial"), factory)

			err := s.Check()
			Expect(err).To(HaveOccurred())
			Expect(multierr.Errors(err)).To(HaveLen(2))
			Expect(rec.count("bc.ExecuteInitialize")).To(Equal(0))
		})

		It("passes when nothing fails", func() {
			s := newStage(problemData(0, 1, "Serial"), factory)
			Expect(s.Check()).To(Succeed())
		})
	})
})
