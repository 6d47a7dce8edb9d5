package dispatch

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"sync"
	"time"

	"OpenWallet-Chain/internal/action"
	xerrors "OpenWallet-Chain/internal/errors"
	"OpenWallet-Chain/pkg/logger"
)

// 调度器的错误码。
const (
	CodeDispatcherClosed  xerrors.Code = "DISPATCHER_CLOSED"
	CodeActionInterrupted xerrors.Code = "ACTION_INTERRUPTED"
)

func init() {
	xerrors.Register(CodeDispatcherClosed, xerrors.Attributes{
		Message:  "调度器已关闭",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeActionInterrupted, xerrors.Attributes{
		Message:  "动作在关停过程中被打断",
		Severity: xerrors.SeverityWarning,
	})
}

const defaultQueueDepth = 16

// Task 是一次需要串行执行的链上操作。
type Task func(ctx context.Context) (*action.Outcome, error)

type jobReply struct {
	out *action.Outcome
	err error
}

type job struct {
	label      string
	ctx        context.Context
	task       Task
	enqueuedAt time.Time
	reply      chan jobReply
}

// Dispatcher 用单个工作协程串行执行所有任务。钱包的交易序列号对
// 提交顺序敏感，任何时刻最多只有一个任务在途，其余任务按提交顺序
// 排队。Do 阻塞直到任务执行完毕，每次提交恰好得到一个结果。
type Dispatcher struct {
	jobs   chan *job
	runCtx context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once

	logger *slog.Logger
}

// Option 定义可选配置。
type Option func(*Dispatcher)

// WithLogger 指定调试日志输出。
func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = log
	}
}

// WithQueueDepth 设置排队深度。
func WithQueueDepth(depth int) Option {
	return func(d *Dispatcher) {
		if depth > 0 {
			d.jobs = make(chan *job, depth)
		}
	}
}

// New 构造调度器并启动工作协程。
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		jobs: make(chan *job, defaultQueueDepth),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	d.runCtx, d.cancel = context.WithCancel(context.Background())
	go d.run()
	return d
}

// Do 提交一个任务并等待它执行完成。任务按提交顺序执行；调度器关闭
// 后提交返回 DISPATCHER_CLOSED。
func (d *Dispatcher) Do(ctx context.Context, label string, task Task) (*action.Outcome, error) {
	if task == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "任务为空")
	}
	j := &job{label: label, ctx: ctx, task: task, enqueuedAt: time.Now(), reply: make(chan jobReply, 1)}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil, xerrors.Newf(CodeDispatcherClosed, "调度器已关闭，拒绝任务 %s", label)
	}
	select {
	case d.jobs <- j:
		d.mu.RUnlock()
	case <-ctx.Done():
		d.mu.RUnlock()
		return nil, ctx.Err()
	}

	select {
	case reply := <-j.reply:
		return reply.out, reply.err
	case <-ctx.Done():
		// 任务仍会在后台跑完，结果被丢弃。
		return nil, ctx.Err()
	}
}

// Close 停止接收新任务，打断在途任务，并等工作协程退出。可重复调用。
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		// 先打断在途任务，让排队的投递尽快腾出位置。
		d.cancel()

		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		close(d.jobs)
		<-d.done
	})
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for j := range d.jobs {
		if d.runCtx.Err() != nil {
			// 关停后积压的任务不再启动，直接回报被打断。
			j.reply <- jobReply{err: xerrors.Newf(CodeActionInterrupted,
				"调度器关停，任务 %s 未开始执行", j.label)}
			continue
		}
		d.execute(j)
	}
}

func (d *Dispatcher) execute(j *job) {
	start := time.Now()
	queuedFor := start.Sub(j.enqueuedAt)

	ctx, cancel := context.WithCancel(j.ctx)
	stop := context.AfterFunc(d.runCtx, cancel)
	out, err := j.task(ctx)
	stop()
	cancel()

	if err != nil && d.runCtx.Err() != nil && stdErrors.Is(err, context.Canceled) {
		err = xerrors.Wrap(CodeActionInterrupted, err, "动作在关停过程中被打断")
	}

	elapsed := time.Since(start)
	if err != nil {
		logger.Audit().Warn("链上动作执行失败",
			slog.String("action", j.label),
			slog.Duration("queued_for", queuedFor),
			slog.Duration("elapsed", elapsed),
			slog.String("error_code", string(xerrors.CodeOf(err))),
			slog.String("error", err.Error()),
		)
	} else {
		logger.Audit().Info("链上动作执行完成",
			slog.String("action", j.label),
			slog.Duration("queued_for", queuedFor),
			slog.Duration("elapsed", elapsed),
		)
	}
	d.logDebug("任务执行结束", slog.String("action", j.label), slog.Duration("elapsed", elapsed))

	j.reply <- jobReply{out: out, err: err}
}

func (d *Dispatcher) logDebug(msg string, attrs ...slog.Attr) {
	if d.logger == nil {
		return
	}
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	d.logger.Debug(msg, args...)
}
