package main

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mudler/hybridrecall/rag"
	"github.com/mudler/hybridrecall/rag/types"
	"github.com/mudler/xlog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// collectionFactory opens (or creates) the collection with the given name
type collectionFactory func(ctx context.Context, name string) (*rag.Collection, error)

type collectionList struct {
	sync.RWMutex
	collections map[string]*rag.Collection
}

func newCollectionList() *collectionList {
	return &collectionList{collections: map[string]*rag.Collection{}}
}

func (l *collectionList) get(name string) (*rag.Collection, bool) {
	l.RLock()
	defer l.RUnlock()
	c, exists := l.collections[name]
	return c, exists
}

func (l *collectionList) set(name string, c *rag.Collection) {
	l.Lock()
	defer l.Unlock()
	l.collections[name] = c
}

// getOrCreate returns the named collection, opening it with factory when it
// is not loaded yet. created reports whether factory was called.
func (l *collectionList) getOrCreate(ctx context.Context, name string, factory collectionFactory) (c *rag.Collection, created bool, err error) {
	l.Lock()
	defer l.Unlock()

	if c, exists := l.collections[name]; exists {
		return c, false, nil
	}

	c, err = factory(ctx, name)
	if err != nil {
		return nil, false, err
	}
	l.collections[name] = c
	return c, true, nil
}

func (l *collectionList) names() []string {
	l.RLock()
	defer l.RUnlock()
	names := make([]string, 0, len(l.collections))
	for name := range l.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type collectionInfo struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newAPI(collections *collectionList, factory collectionFactory) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API routes for managing collections
	e.POST("/api/collections", createCollection(collections, factory))
	e.GET("/api/collections", listCollections(collections))
	e.POST("/api/collections/:name/documents", storeDocuments(collections))
	e.GET("/api/collections/:name/documents", listDocuments(collections))
	e.GET("/api/collections/:name/documents/:id", getDocument(collections))
	e.DELETE("/api/collections/:name/documents/:id", deleteDocument(collections))
	e.POST("/api/collections/:name/search", search(collections))
	e.POST("/api/collections/:name/reset", reset(collections))

	return e
}

func startAPI(listenAddress string, collections *collectionList, factory collectionFactory) {
	e := newAPI(collections, factory)
	e.Logger.Fatal(e.Start(listenAddress))
}

func errorMessage(message string) map[string]string {
	return map[string]string{"error": message}
}

// createCollection handles creating a new collection
func createCollection(collections *collectionList, factory collectionFactory) func(c echo.Context) error {
	return func(c echo.Context) error {
		type request struct {
			Name string `json:"name"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil || r.Name == "" {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}

		if err := rag.ValidateCollectionName(r.Name); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage(err.Error()))
		}

		collection, created, err := collections.getOrCreate(c.Request().Context(), r.Name, factory)
		if err != nil {
			xlog.Error("Failed to create collection", "name", r.Name, "error", err)
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to create collection: "+err.Error()))
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		return c.JSON(status, collectionInfo{Name: r.Name, Count: collection.Count()})
	}
}

// listCollections returns all collections
func listCollections(collections *collectionList) func(c echo.Context) error {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, collections.names())
	}
}

func storeDocuments(collections *collectionList) func(c echo.Context) error {
	return func(c echo.Context) error {
		collection, exists := collections.get(c.Param("name"))
		if !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}

		docs := []types.DocumentRef{}
		if err := (&echo.DefaultBinder{}).BindBody(c, &docs); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}

		stored, err := collection.Store(c.Request().Context(), docs...)
		if err != nil {
			xlog.Error("Failed to store documents", "collection", collection.Name(), "error", err)
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to store documents: "+err.Error()))
		}

		return c.JSON(http.StatusOK, stored)
	}
}

func listDocuments(collections *collectionList) func(c echo.Context) error {
	return func(c echo.Context) error {
		collection, exists := collections.get(c.Param("name"))
		if !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}
		return c.JSON(http.StatusOK, collection.ListDocuments())
	}
}

func getDocument(collections *collectionList) func(c echo.Context) error {
	return func(c echo.Context) error {
		collection, exists := collections.get(c.Param("name"))
		if !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}

		doc, err := collection.Get(c.Param("id"))
		if err != nil {
			return c.JSON(http.StatusNotFound, errorMessage(err.Error()))
		}
		return c.JSON(http.StatusOK, doc)
	}
}

func deleteDocument(collections *collectionList) func(c echo.Context) error {
	return func(c echo.Context) error {
		collection, exists := collections.get(c.Param("name"))
		if !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}

		err := collection.RemoveDocument(c.Request().Context(), c.Param("id"))
		switch {
		case errors.Is(err, types.ErrDocumentNotFound):
			return c.JSON(http.StatusNotFound, errorMessage(err.Error()))
		case err != nil:
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to remove document: "+err.Error()))
		}

		return c.JSON(http.StatusOK, collection.ListDocuments())
	}
}

func reset(collections *collectionList) func(c echo.Context) error {
	return func(c echo.Context) error {
		collection, exists := collections.get(c.Param("name"))
		if !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}

		if err := collection.Reset(c.Request().Context()); err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to reset collection: "+err.Error()))
		}
		return c.JSON(http.StatusOK, collectionInfo{Name: collection.Name()})
	}
}

func search(collections *collectionList) func(c echo.Context) error {
	return func(c echo.Context) error {
		collection, exists := collections.get(c.Param("name"))
		if !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}

		// unset fields fall back to the collection defaults
		type request struct {
			Query             string   `json:"query"`
			Limit             *int     `json:"limit"`
			OverrequestFactor *float64 `json:"overrequest_factor"`
			VectorPriority    *float64 `json:"vector_priority"`
			TextPriority      *float64 `json:"text_priority"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}

		opts := collection.Defaults()
		if r.Limit != nil {
			opts.Limit = *r.Limit
		}
		if r.OverrequestFactor != nil {
			opts.OverrequestFactor = *r.OverrequestFactor
		}
		if r.VectorPriority != nil {
			opts.VectorPriority = *r.VectorPriority
		}
		if r.TextPriority != nil {
			opts.TextPriority = *r.TextPriority
		}

		results, err := collection.Search(c.Request().Context(), r.Query, opts)
		switch {
		case errors.Is(err, types.ErrInvalidConfiguration):
			return c.JSON(http.StatusBadRequest, errorMessage(err.Error()))
		case errors.Is(err, types.ErrSourceUnavailable):
			return c.JSON(http.StatusBadGateway, errorMessage(err.Error()))
		case err != nil:
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to search collection: "+err.Error()))
		}

		return c.JSON(http.StatusOK, results)
	}
}
