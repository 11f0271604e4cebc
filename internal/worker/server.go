package worker

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"party-game/internal/tasks"
)

// WorkerServer 封装了 Asynq Worker Server 和周期任务 Scheduler 的启动和关闭逻辑
type WorkerServer struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	log       *logrus.Entry
	sweeper   RoomSweeper
	idleFor   time.Duration
}

// NewWorkerServer 创建一个新的 WorkerServer 实例
func NewWorkerServer(redisOpt asynq.RedisClientOpt, sweeper RoomSweeper, idleFor time.Duration, logger *logrus.Logger) *WorkerServer {
	logEntry := logger.WithField("component", "worker_server")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				taskID := ""
				if rw := task.ResultWriter(); rw != nil {
					taskID = rw.TaskID()
				}
				retryCount, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logEntry.WithFields(logrus.Fields{
					"task_id":   taskID,
					"task_type": task.Type(),
					"retries":   retryCount,
					"max_retry": maxRetry,
				}).Errorf("Task failed: %v", err)
			}),
		},
	)

	return &WorkerServer{
		server:    server,
		scheduler: asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC}),
		log:       logEntry,
		sweeper:   sweeper,
		idleFor:   idleFor,
	}
}

// Mux 返回注册好任务处理器的 ServeMux
func (ws *WorkerServer) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeRoomSweep, NewRoomSweepHandler(ws.sweeper, ws.idleFor))
	return mux
}

// Start 运行 Worker Server
// 它应该在一个单独的 goroutine 中调用
func (ws *WorkerServer) Start() {
	ws.log.Info("Worker server starting...")
	if err := ws.server.Run(ws.Mux()); err != nil {
		if !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, asynq.ErrServerClosed) {
			ws.log.Fatalf("Could not run worker server: %v", err)
		} else {
			ws.log.Info("Worker server stopped.")
		}
	}
}

// RegisterPeriodicTasks 注册周期性的空闲房间清理并在后台启动 Scheduler
func (ws *WorkerServer) RegisterPeriodicTasks(schedule string) error {
	payload, err := tasks.NewRoomSweepTask(ws.idleFor)
	if err != nil {
		return err
	}
	entryID, err := ws.scheduler.Register(schedule, asynq.NewTask(tasks.TypeRoomSweep, payload), asynq.Queue("default"))
	if err != nil {
		return err
	}
	ws.log.Infof("Periodic room sweep task registered with schedule '%s' (EntryID: %s)", schedule, entryID)

	if err := ws.scheduler.Start(); err != nil {
		return err
	}
	ws.log.Info("Asynq scheduler started")
	return nil
}

// Shutdown 停止 Scheduler 并等待正在处理的任务完成
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server...")
	ws.scheduler.Shutdown()
	ws.server.Shutdown()
	ws.log.Info("Worker server shut down.")
}
