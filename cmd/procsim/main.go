// The procsim command boots the process core, runs a synthetic process
// tree on it and reaps the tree from init, printing each reaped process
// and a summary of the core's counters.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"libos/config"
	db "libos/debug"
	"libos/proc"
	"libos/procmgr"
	"libos/serr"
)

type params struct {
	config   string
	reparent string
	depth    int
	fanout   int
	threads  int
	orphan   bool
}

var p params

var rootCmd = &cobra.Command{
	Use:   "procsim",
	Short: "Run a synthetic process tree on the process core",
	Long: `procsim boots init, spawns a tree of processes of the given depth and
fanout, and reaps every process from init.  With --orphan interior
processes exit without waiting, so their children are reparented.`,
	Args: cobra.NoArgs,
	RunE: run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&p.config, "config", "", "YAML config file (default $"+config.CONFIG_ENV+")")
	f.StringVar(&p.reparent, "reparent", "", "reparent policy: init or ancestor")
	f.IntVar(&p.depth, "depth", 3, "depth of the process tree")
	f.IntVar(&p.fanout, "fanout", 3, "children per interior process")
	f.IntVar(&p.threads, "threads", 2, "extra threads per leaf, joined through CLEARTID")
	f.BoolVar(&p.orphan, "orphan", false, "interior processes exit without waiting")
}

func readConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if p.config != "" {
		cfg, err = config.Read(p.config)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return nil, err
	}
	if p.reparent != "" {
		cfg.Reparent = config.Treparent(p.reparent)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// leaf starts p.threads threads sharing its address space and joins
// each the way pthread_join does: wait on the CLEARTID word until the
// exiting thread zeroes it.
func leaf(t *procmgr.Thread) int {
	mgr := t.Mgr()
	as := t.VM()
	if p.threads == 0 {
		return int(mgr.Getpid(t) % 8)
	}
	base, err := as.Mmap(4*p.threads, false)
	if err != nil {
		db.DPrintf(db.PROCSIM, "%v mmap: %v", t, err)
		return 1
	}
	for i := 0; i < p.threads; i++ {
		ctid := base + uintptr(4*i)
		_, err := mgr.Clone(t, proc.CLONE_PTHREAD, &procmgr.CloneArgs{
			Entry:     func(*procmgr.Thread) int { return 0 },
			ParentTid: ctid,
			ChildTid:  ctid,
		})
		if err != nil {
			db.DPrintf(db.PROCSIM, "%v clone: %v", t, err)
			return 1
		}
	}
	for i := 0; i < p.threads; i++ {
		ctid := base + uintptr(4*i)
		for {
			v, err := as.Load32(ctid)
			if err != nil {
				return 1
			}
			if v == 0 {
				break
			}
			err = mgr.FutexWait(t, ctid, v, 0, 0)
			if err != nil && !serr.IsErrCode(err, serr.TErrAgain) {
				return 1
			}
		}
	}
	return int(mgr.Getpid(t) % 8)
}

// interior returns the entry of a process at depth d of the tree.
func interior(d int) procmgr.Entry {
	return func(t *procmgr.Thread) int {
		mgr := t.Mgr()
		pn := "/bin/leaf"
		if d+1 < p.depth {
			pn = fmt.Sprintf("/bin/level%d", d+1)
		}
		for i := 0; i < p.fanout; i++ {
			if _, err := mgr.Spawn(t, pn, nil, nil, nil); err != nil {
				db.DPrintf(db.PROCSIM, "%v spawn %v: %v", t, pn, err)
				return 1
			}
		}
		if p.orphan {
			return 0
		}
		for i := 0; i < p.fanout; i++ {
			if _, _, err := mgr.Wait4(t, proc.AnyChild(), 0); err != nil {
				db.DPrintf(db.PROCSIM, "%v wait4: %v", t, err)
				return 1
			}
		}
		return 0
	}
}

func run(cmd *cobra.Command, args []string) error {
	if p.depth < 1 || p.fanout < 1 || p.threads < 0 {
		return fmt.Errorf("bad tree shape: depth %d fanout %d threads %d", p.depth, p.fanout, p.threads)
	}
	cfg, err := readConfig()
	if err != nil {
		return err
	}
	fs := afero.NewMemMapFs()
	ld := procmgr.NewImageLoader(fs)
	if err := ld.RegisterProgram("/bin/leaf", "leaf", leaf); err != nil {
		return err
	}
	for d := 0; d < p.depth; d++ {
		if err := ld.RegisterProgram(fmt.Sprintf("/bin/level%d", d), fmt.Sprintf("level%d", d), interior(d)); err != nil {
			return err
		}
	}
	mgr, t0, err := procmgr.NewProcMgr(cfg, fs, ld)
	if err != nil {
		return err
	}
	defer mgr.Shutdown()

	start := time.Now()
	root, err := mgr.Spawn(t0, "/bin/level0", nil, nil, nil)
	if err != nil {
		return err
	}
	fmt.Printf("cfg %v\nroot %v\n", cfg, root)
	n := 0
	for {
		pid, code, err := mgr.Wait4(t0, proc.AnyChild(), 0)
		if serr.IsErrCode(err, serr.TErrNoChild) {
			break
		}
		if err != nil {
			return err
		}
		n++
		fmt.Printf("reaped %v exit %d\n", pid, code)
	}
	fmt.Printf("%v reaped by init in %v; table %v\n", humanize.Comma(int64(n)), time.Since(start), mgr.Pids())
	mfs, err := mgr.Registry().Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			v := m.GetCounter().GetValue() + m.GetGauge().GetValue()
			fmt.Printf("%-28s %v\n", mf.GetName(), humanize.Ftoa(v))
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "procsim: %v\n", err)
		os.Exit(1)
	}
}
