package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"teamhub-api/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, deduper Deduper, logger *log.Logger) {
	e.GET("/healthz", healthz(store))

	g := e.Group("/api/boards/:boardID")
	g.GET("", getBoard(store, auth, logger))
	g.GET("/activity", getActivity(store, auth))
	g.GET("/stream", streamBoard(store, auth))

	g.PUT("/lanes/order", putLaneOrder(store, auth, deduper))
	g.POST("/lanes", postLane(store, auth, deduper))
	g.PATCH("/lanes/:laneID", patchLane(store, auth, deduper))
	g.DELETE("/lanes/:laneID", deleteLane(store, auth, deduper))
	g.PUT("/lanes/:laneID/items/order", putItemOrder(store, auth, deduper))
	g.POST("/lanes/:laneID/items", postItem(store, auth, deduper))

	g.POST("/items/:itemID/move", postItemMove(store, auth, deduper))
	g.PATCH("/items/:itemID", patchItem(store, auth, deduper))
	g.POST("/items/:itemID/archive", postItemArchive(store, auth, deduper))
	g.POST("/items/:itemID/comments", postComment(store, auth, deduper))
	g.GET("/items/:itemID/comments", getComments(store, auth))
}

func healthz(_ Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		//TODO: implement healthcheck
		return c.NoContent(http.StatusOK)
	}
}

// actor is the resolved caller of a board request: identity plus the
// capability set derived from the stored membership role.
type actor struct {
	userID string
	role   domain.Role
	caps   domain.Capabilities
}

// resolveActor authenticates the request and loads the caller's role on the
// board. A missing membership yields the empty role and an all-denied
// capability set, not an error.
func resolveActor(c echo.Context, store Storage, auth Authenticator) (actor, error) {
	userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return actor{}, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	role, err := store.FetchUserRole(c.Request().Context(), c.Param("boardID"), userID)
	if err != nil {
		c.Logger().Error(err)
		return actor{}, echo.NewHTTPError(http.StatusInternalServerError, "failed to resolve role")
	}
	return actor{userID: userID, role: role, caps: domain.CapabilitiesFor(role)}, nil
}

func forbidden(c echo.Context) error {
	return c.JSON(http.StatusForbidden, errorResponse{Error: "operation not permitted"})
}

// decodeBody strictly decodes the request payload; unknown fields are
// rejected so client drift surfaces as 400s instead of silent drops.
func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, mutationMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// claimIdempotency records the request's Idempotency-Key. It returns
// duplicate=true when the key has been seen before; release rolls the claim
// back when the write fails so the client can retry with the same key.
func claimIdempotency(c echo.Context, deduper Deduper, userID string) (release func(), duplicate bool, err error) {
	release = func() {}
	if deduper == nil {
		return release, false, nil
	}
	key := c.Request().Header.Get(idempotencyHeader)
	if key == "" {
		return release, false, nil
	}

	ctx := c.Request().Context()
	added, err := deduper.Add(ctx, userID, key)
	if err != nil {
		return release, false, err
	}
	if !added {
		return release, true, nil
	}
	release = func() {
		if rerr := deduper.Remove(ctx, userID, key); rerr != nil {
			c.Logger().Errorf("idempotency rollback failed: %v, key: %s", rerr, key)
		}
	}
	return release, false, nil
}

func getBoard(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger)
		if spanCtx != nil {
			req := c.Request().WithContext(spanCtx)
			c.SetRequest(req)
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		act, actErr := resolveActor(c, store, auth)
		metrics.ObserveAuth(time.Since(authStart))
		if actErr != nil {
			metrics.SetErrorStage("auth")
			err = actErr
			return err
		}
		if act.role == "" {
			metrics.SetErrorStage("forbidden")
			err = forbidden(c)
			return err
		}

		fetchStart := time.Now()
		board, fetchErr := store.FetchBoardWithData(ctx, c.Param("boardID"))
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load board"})
			return err
		}
		metrics.SetLanesReturned(len(board.Lanes))
		items := 0
		for i := range board.Lanes {
			items += len(board.Lanes[i].Items)
		}
		metrics.SetItemsReturned(items)

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, board)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func getActivity(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		act, err := resolveActor(c, store, auth)
		if err != nil {
			return err
		}
		if act.role == "" {
			return forbidden(c)
		}

		limit := 50
		if raw := c.QueryParam("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			}
			limit = n
		}

		records, err := store.FetchActivity(c.Request().Context(), c.Param("boardID"), limit)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load activity"})
		}
		return c.JSON(http.StatusOK, activityResponse{Records: records})
	}
}

func putLaneOrder(store Storage, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		act, err := resolveActor(c, store, auth)
		if err != nil {
			return err
		}
		if !act.caps.CanManageLanes {
			return forbidden(c)
		}

		var req orderRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if len(req.OrderedIDs) == 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "orderedIds is required"})
		}

		release, duplicate, err := claimIdempotency(c, deduper, act.userID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "idempotency check failed"})
		}
		if duplicate {
			return c.NoContent(http.StatusConflict)
		}

		if err := store.ReorderLanes(c.Request().Context(), c.Param("boardID"), req.OrderedIDs); err != nil {
			release()
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to reorder lanes"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func putItemOrder(store Storage, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		act, err := resolveActor(c, store, auth)
		if err != nil {
			return err
		}
		if !act.caps.CanEditItems {
			return forbidden(c)
		}

		var req orderRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if len(req.OrderedIDs) == 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "orderedIds is required"})
		}

		release, duplicate, err := claimIdempotency(c, deduper, act.userID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "idempotency check failed"})
		}
		if duplicate {
			return c.NoContent(http.StatusConflict)
		}

		if err := store.ReorderItems(c.Request().Context(), c.Param("boardID"), c.Param("laneID"), req.OrderedIDs); err != nil {
			release()
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to reorder items"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postItemMove(store Storage, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		act, err := resolveActor(c, store, auth)
		if err != nil {
			return err
		}
		if !act.caps.CanEditItems {
			return forbidden(c)
		}

		var req moveItemRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.ToLaneID == "" || len(req.OrderedIDs) == 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "toLaneId and orderedIds are required"})
		}

		ctx := c.Request().Context()
		boardID := c.Param("boardID")
		itemID := c.Param("itemID")

		// Lane names feed the human-readable activity text. The snapshot
		// read is served from cache on the hot path.
		board, err := store.FetchBoardWithData(ctx, boardID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load board"})
		}
		toLane := board.Lane(req.ToLaneID)
		if toLane == nil {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "destination lane not found"})
		}
		var fromName string
		for i := range board.Lanes {
			for j := range board.Lanes[i].Items {
				if board.Lanes[i].Items[j].ID == itemID {
					fromName = board.Lanes[i].Name
				}
			}
		}
		if fromName == "" {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "item not found"})
		}

		release, duplicate, err := claimIdempotency(c, deduper, act.userID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "idempotency check failed"})
		}
		if duplicate {
			return c.NoContent(http.StatusConflict)
		}

		moveReq := domain.MoveItemRequest{
			BoardID:      boardID,
			ItemID:       itemID,
			ToLaneID:     req.ToLaneID,
			OrderedIDs:   req.OrderedIDs,
			FromLaneName: fromName,
			ToLaneName:   toLane.Name,
			Actor:        act.userID,
		}
		if err := store.MoveItem(ctx, moveReq); err != nil {
			release()
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to move item"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postLane(store Storage, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		act, err := resolveActor(c, store, auth)
		if err != nil {
			return err
		}
		if !act.caps.CanManageLanes {
			return forbidden(c)
		}

		var req laneRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.Name == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "name is required"})
		}

		release, duplicate, err := claimIdempotency(c, deduper, act.userID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "idempotency check failed"})
		}
		if duplicate {
			return c.NoContent(http.StatusConflict)
		}

		lane, err := store.CreateLane(c.Request().Context(), c.Param("boardID"), req.Name, act.userID)
		if err != nil {
			release()
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to create lane"})
		}
		return c.JSON(http.StatusCreated, lane)
	}
}

func patchLane(store Storage, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		act, err := resolveActor(c, store, auth)
		if err != nil {
			return err
		}
		if !act.caps.CanManageLanes {
			return forbidden(c)
		}

		var req laneRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.Name == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "name is required"})
		}

		release, duplicate, err := claimIdempotency(c, deduper, act.userID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "idempotency check failed"})
		}
		if duplicate {
			return c.NoContent(http.StatusConflict)
		}

		err = store.UpdateLane(c.Request().Context(), c.Param("boardID"), c.Param("laneID"), req.Name, act.userID)
		if err != nil {
			release()
			return storageError(c, err, "failed to rename lane")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteLane(store Storage, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		act, err := resolveActor(c, store, auth)
		if err != nil {
			return err
		}
		if !act.caps.CanManageLanes {
			return forbidden(c)
		}

		release, duplicate, err := claimIdempotency(c, deduper, act.userID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "idempotency check failed"})
		}
		if duplicate {
			return c.NoContent(http.StatusConflict)
		}

		err = store.DeleteLane(c.Request().Context(), c.Param("boardID"), c.Param("laneID"), act.userID)
		if err != nil {
			release()
			return storageError(c, err, "failed to delete lane")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postItem(store Storage, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		act, err := resolveActor(c, store, auth)
		if err != nil {
			return err
		}
		if !act.caps.CanEditItems {
			return forbidden(c)
		}

		var req itemCreateRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.Title == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "title is required"})
		}

		release, duplicate, err := claimIdempotency(c, deduper, act.userID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "idempotency check failed"})
		}
		if duplicate {
			return c.NoContent(http.StatusConflict)
		}

		item, err := store.CreateItem(c.Request().Context(), c.Param("boardID"), c.Param("laneID"), req.Title, act.userID, req.Position)
		if err != nil {
			release()
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to create item"})
		}
		return c.JSON(http.StatusCreated, item)
	}
}

func patchItem(store Storage, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		act, err := resolveActor(c, store, auth)
		if err != nil {
			return err
		}
		if !act.caps.CanEditItems {
			return forbidden(c)
		}

		var req itemPatchRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		patch := domain.ItemPatch{
			Title:       req.Title,
			Description: req.Description,
			DueDate:     req.DueDate,
			Tags:        req.Tags,
			Assignees:   req.Assignees,
		}
		if req.Priority != nil {
			p := domain.Priority(*req.Priority)
			switch p {
			case domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh, "":
			default:
				return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid priority"})
			}
			patch.Priority = &p
		}
		if patch.Empty() {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "no fields to update"})
		}

		release, duplicate, err := claimIdempotency(c, deduper, act.userID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "idempotency check failed"})
		}
		if duplicate {
			return c.NoContent(http.StatusConflict)
		}

		err = store.UpdateItem(c.Request().Context(), c.Param("boardID"), c.Param("itemID"), patch)
		if err != nil {
			release()
			return storageError(c, err, "failed to update item")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postItemArchive(store Storage, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		act, err := resolveActor(c, store, auth)
		if err != nil {
			return err
		}
		if !act.caps.CanEditItems {
			return forbidden(c)
		}

		release, duplicate, err := claimIdempotency(c, deduper, act.userID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "idempotency check failed"})
		}
		if duplicate {
			return c.NoContent(http.StatusConflict)
		}

		err = store.ArchiveItem(c.Request().Context(), c.Param("boardID"), c.Param("itemID"), act.userID)
		if err != nil {
			release()
			return storageError(c, err, "failed to archive item")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postComment(store Storage, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		act, err := resolveActor(c, store, auth)
		if err != nil {
			return err
		}
		if !act.caps.CanComment {
			return forbidden(c)
		}

		var req commentRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.Body == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "body is required"})
		}

		release, duplicate, err := claimIdempotency(c, deduper, act.userID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "idempotency check failed"})
		}
		if duplicate {
			return c.NoContent(http.StatusConflict)
		}

		comment, err := store.AddComment(c.Request().Context(), c.Param("boardID"), c.Param("itemID"), act.userID, req.Body)
		if err != nil {
			release()
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to add comment"})
		}
		return c.JSON(http.StatusCreated, comment)
	}
}

func getComments(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		act, err := resolveActor(c, store, auth)
		if err != nil {
			return err
		}
		if act.role == "" {
			return forbidden(c)
		}

		comments, err := store.FetchComments(c.Request().Context(), c.Param("itemID"))
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load comments"})
		}
		return c.JSON(http.StatusOK, comments)
	}
}

func storageError(c echo.Context, err error, msg string) error {
	var notFound NotFoundError
	if errors.As(err, &notFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	}
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: msg})
}
