// Package sweeper освобождает брошенные тестовые сессии.
//
// Сессия, которую оператор начал и не завершил через Complete, остаётся открытой.
// Sweeper по cron-расписанию находит такие сессии, не менявшиеся
// дольше AbandonAfter, помечает их брошенными, снимает запись
// "текущая сессия оператора" и публикует session.abandoned.
// Итог сессии не меняется.
//
// Структура:
//   - sweeper.go — Sweeper (Tick, Start, Stop)
//   - cron.go    — разбор cron-выражений
//
// Использование:
//
//	sw, err := sweeper.New(sweeper.Config{
//	    Sessions:  sessionRepo,
//	    Tracker:   tracker,    // опционально
//	    Publisher: publisher,  // опционально
//	    Leader:    repo.NewAdvisoryLock(pool, repo.SweeperLockKey),
//	    Logger:    logger,
//	})
//	sw.Start(ctx)
//	defer sw.Stop()
//
// Tick выполняется только держателем advisory lock, поэтому
// несколько экземпляров процесса не дублируют события.
package sweeper
