package contract

import (
	"context"
	"reflect"

	"github.com/google/uuid"

	"github.com/guidoasbun/chat-sec-1/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself; supervision handles panics and restarts.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// used for logging and supervision without manual naming.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Conn is one live client connection as the core sees it: an addressable
// sink for outbound events. The transport behind it is external.
type Conn interface {
	ID() uuid.UUID
	Send(e event.Outbound) error
}
